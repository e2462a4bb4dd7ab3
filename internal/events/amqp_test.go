package events

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// newTestPublisher builds a publisher without a broker; delivered events are
// collected in order.
func newTestPublisher(buffer int, deliver func(Event) error) *AMQPPublisher {
	p := &AMQPPublisher{exchange: "test", queue: make(chan Event, buffer), deliver: deliver}
	p.wg.Add(1)
	go p.run()
	return p
}

func TestAMQPPublisherDrainsOnClose(t *testing.T) {
	var mu sync.Mutex
	var got []string
	p := newTestPublisher(8, func(e Event) error {
		mu.Lock()
		got = append(got, e.AttemptID)
		mu.Unlock()
		if e.AttemptID == "bad" {
			return errors.New("broker down")
		}
		return nil
	})
	for _, id := range []string{"a1", "bad", "a2"} {
		p.Publish(context.Background(), Event{Type: AttemptSubmitted, AttemptID: id})
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(got) != 3 || got[0] != "a1" || got[2] != "a2" {
		t.Fatalf("delivered %v", got)
	}
}

func TestAMQPPublisherDropsWhenFull(t *testing.T) {
	release := make(chan struct{})
	var delivered int
	p := newTestPublisher(1, func(Event) error {
		<-release
		delivered++
		return nil
	})
	// the worker takes at most one event and blocks; the buffer holds one more
	for i := 0; i < 5; i++ {
		p.Publish(context.Background(), Event{Type: AttemptStarted, AttemptID: "x"})
	}
	close(release)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if delivered < 1 || delivered > 2 {
		t.Fatalf("delivered = %d, want 1 or 2", delivered)
	}
}

func TestAMQPPublisherPublishAfterClose(t *testing.T) {
	p := newTestPublisher(4, func(Event) error { return nil })
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("publish after close panicked: %v", r)
		}
	}()
	p.Publish(context.Background(), Event{Type: AttemptGraded, AttemptID: "late"})
	if err := p.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestAMQPPublisherConcurrentClose(t *testing.T) {
	p := newTestPublisher(16, func(Event) error { return nil })
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				p.Publish(context.Background(), Event{Type: AttemptSubmitted, AttemptID: "c"})
			}
		}()
	}
	_ = p.Close()
	wg.Wait()
}
