package events

import "testing"

func TestNilPublisher_NoOps(t *testing.T) {
	var p *Publisher

	if err := p.Publish(SubjectSessionStarted, map[string]string{"session_id": "s1"}); err != nil {
		t.Errorf("nil publish should be a no-op, got %v", err)
	}
	p.Close()
}

func TestPublish_UnmarshalablePayload(t *testing.T) {
	p := &Publisher{}

	if err := p.Publish(SubjectSOAPGenerated, map[string]any{"bad": make(chan int)}); err == nil {
		t.Error("expected marshal error for unserializable payload")
	}
}
