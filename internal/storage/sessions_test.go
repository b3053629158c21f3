package storage

import (
	"sync"
	"testing"

	"github.com/kingspeech/leadbot/internal/survey"
)

func TestSessionStoreLockBusy(t *testing.T) {
	p := NewSessionStore(nil, survey.StepLanguage, "ru")

	l, ok := p.acquire(1)
	if !ok {
		t.Fatal("first acquire must succeed")
	}
	if _, ok := p.acquire(1); ok {
		t.Fatal("second acquire for the same user must report busy")
	}
	if _, ok := p.acquire(2); !ok {
		t.Fatal("another user must not be blocked")
	}

	l.mu.Unlock()
	p.release(1, l)
	if l2, ok := p.acquire(1); !ok {
		t.Fatal("acquire after release must succeed")
	} else {
		l2.mu.Unlock()
		p.release(1, l2)
	}
}

func TestSessionStoreLockMapDoesNotLeak(t *testing.T) {
	p := NewSessionStore(nil, survey.StepLanguage, "ru")

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				id := int64(i % 37)
				l, ok := p.acquire(id)
				if !ok {
					continue
				}
				l.mu.Unlock()
				p.release(id, l)
			}
		}()
	}
	wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.locks); n != 0 {
		t.Fatalf("locks map holds %d entries after all releases, want 0", n)
	}
}
