package contract

import "context"

// Handler is the capability every plugin implements. Single-shot handlers are
// handlers with an empty slot list.
type Handler interface {
	Definition() Definition
	ExtractSlot(slot, text string) (string, bool)
	ValidateSlot(slot, raw string) (any, error)
	ProduceAnswer(ctx context.Context, req AnswerRequest) (string, error)
}

// Extractor pulls values for any declared slot out of free text.
type Extractor interface {
	Extract(text string) map[string]string
}

// Prompter renders the request text asking for a slot.
type Prompter interface {
	Prompt(slot string) string
}

// Transport is the user-facing side of the engine.
type Transport interface {
	Receive(ctx context.Context) (string, error)
	Send(ctx context.Context, msg Message) error
	NotifyActiveHandler(name string)
}
