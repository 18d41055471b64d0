package messages

// Message is implemented by every value that can be published on the broker.
type Message interface {
	// Publisher returns the object that published the message, or nil.
	Publisher() any
}

// Base is embedded by concrete messages to satisfy Message.
type Base struct {
	publisher any
}

// From returns a Base that records publisher as the message origin.
func From(publisher any) Base {
	return Base{publisher: publisher}
}

func (b Base) Publisher() any {
	return b.publisher
}

// Text carries a plain string.
type Text struct {
	Base
	Text string `json:"text"`
}

// NewText creates a Text message. The publisher may be nil.
func NewText(text string, publisher any) Text {
	return Text{Base: From(publisher), Text: text}
}

// ObjectRelay relays an arbitrary object to interested subscribers.
type ObjectRelay struct {
	Base
	Object any `json:"object"`
}

// NewObjectRelay creates an ObjectRelay message. The publisher may be nil.
func NewObjectRelay(object, publisher any) ObjectRelay {
	return ObjectRelay{Base: From(publisher), Object: object}
}
