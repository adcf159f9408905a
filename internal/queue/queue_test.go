package queue

import "testing"

func TestPushPopOrder(t *testing.T) {
	q := New()
	for i := 0; i < 5; i++ {
		q.PushBack(&Envelope{PTS: int64(i)})
	}
	for i := 0; i < 5; i++ {
		e := q.PopFront()
		if e == nil {
			t.Fatalf("pop %d: got nil", i)
		}
		if e.PTS != int64(i) {
			t.Errorf("pop %d: PTS = %d, want %d", i, e.PTS, i)
		}
	}
	if e := q.PopFront(); e != nil {
		t.Errorf("pop on empty queue: got %v, want nil", e)
	}
}

func TestSizeAndEmpty(t *testing.T) {
	q := New()
	if !q.Empty() {
		t.Fatal("new queue should be empty")
	}
	q.PushBack(&Envelope{})
	q.PushBack(&Envelope{})
	if q.Size() != 2 {
		t.Errorf("size = %d, want 2", q.Size())
	}
	q.PopFront()
	if q.Size() != 1 {
		t.Errorf("size after one pop = %d, want 1", q.Size())
	}
}

func TestPeekFrontDoesNotRemove(t *testing.T) {
	q := New()
	q.PushBack(&Envelope{PTS: 7})
	if e := q.PeekFront(); e == nil || e.PTS != 7 {
		t.Fatalf("PeekFront = %v, want PTS 7", e)
	}
	if q.Size() != 1 {
		t.Errorf("size after PeekFront = %d, want 1 (peek must not remove)", q.Size())
	}
	if e := q.PopFront(); e == nil || e.PTS != 7 {
		t.Fatalf("PopFront after PeekFront = %v, want PTS 7", e)
	}
}

func TestDrainedRequiresDoneAndEmpty(t *testing.T) {
	q := New()
	q.PushBack(&Envelope{})
	q.End()
	if q.Drained() {
		t.Fatal("queue with a pending item must not be Drained, even once done")
	}
	q.PopFront()
	if !q.Drained() {
		t.Fatal("empty queue with done set must be Drained")
	}
}

func TestEmptyQueueDrainedOnlyAfterEnd(t *testing.T) {
	q := New()
	if q.Drained() {
		t.Fatal("fresh queue is not done, so not Drained")
	}
	q.End()
	if !q.Drained() {
		t.Fatal("empty queue with End called should be Drained")
	}
}
