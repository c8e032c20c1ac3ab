package ringbuf

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"
)

func fill(n int, start byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = start + byte(i)
	}
	return b
}

func TestNewRoundsToPackets(t *testing.T) {
	t.Parallel()

	b, err := New(188*3 + 100)
	if err != nil {
		t.Fatal(err)
	}
	if b.Cap() != 188*3 {
		t.Errorf("Cap = %d, want %d", b.Cap(), 188*3)
	}
	if _, err := New(100); err == nil {
		t.Error("capacity below one packet should fail")
	}
}

func TestCapacityLaw(t *testing.T) {
	t.Parallel()

	b, _ := New(188 * 4)
	if err := b.Write(fill(188*3, 0)); err != nil {
		t.Fatal(err)
	}
	if got := b.Free(); got != 188 {
		t.Errorf("Free = %d, want 188", got)
	}
	if err := b.Write(fill(189, 0)); !errors.Is(err, ErrNoSpace) {
		t.Errorf("oversized write err = %v, want ErrNoSpace", err)
	}
	if err := b.Write(fill(188, 0)); err != nil {
		t.Errorf("exact fit: %v", err)
	}
	if b.Unread() != b.Cap() || b.Free() != 0 {
		t.Errorf("full buffer Unread=%d Free=%d", b.Unread(), b.Free())
	}
}

func TestWraparound(t *testing.T) {
	t.Parallel()

	b, _ := New(188 * 2)
	first := fill(300, 0)
	if err := b.Write(first); err != nil {
		t.Fatal(err)
	}
	out := make([]byte, 300)
	if n, _ := b.Read(out); n != 300 {
		t.Fatalf("read %d", n)
	}

	// Crosses the end of the backing slice.
	second := fill(250, 100)
	if err := b.Write(second); err != nil {
		t.Fatal(err)
	}
	if b.Unread() != 250 {
		t.Errorf("Unread = %d, want 250", b.Unread())
	}
	got := make([]byte, 250)
	n, err := b.Read(got)
	if err != nil || n != 250 {
		t.Fatalf("Read = %d, %v", n, err)
	}
	if !bytes.Equal(got, second) {
		t.Error("wrapped data corrupted")
	}
}

func TestPeekIsNonDestructive(t *testing.T) {
	t.Parallel()

	b, _ := New(188 * 4)
	data := fill(376, 7)
	if err := b.Write(data); err != nil {
		t.Fatal(err)
	}

	p := make([]byte, 200)
	n, err := b.Peek(p)
	if err != nil || n != 200 {
		t.Fatalf("Peek = %d, %v", n, err)
	}
	if !bytes.Equal(p, data[:200]) {
		t.Error("peek data mismatch")
	}
	if b.Unread() != 376 {
		t.Errorf("Unread after peek = %d, want 376", b.Unread())
	}

	// The second peek continues where the first stopped.
	n, _ = b.Peek(p)
	if n != 176 || !bytes.Equal(p[:n], data[200:]) {
		t.Errorf("second peek = %d bytes", n)
	}

	// Reading resets the peek cursor to the read position.
	r := make([]byte, 100)
	if n, _ := b.Read(r); n != 100 || !bytes.Equal(r, data[:100]) {
		t.Fatalf("Read = %d", n)
	}
	n, _ = b.Peek(p)
	if n != 200 || !bytes.Equal(p, data[100:300]) {
		t.Errorf("peek after read = %d bytes, want data from offset 100", n)
	}
}

func TestPeekTimeout(t *testing.T) {
	t.Parallel()

	b, _ := New(188)
	start := time.Now()
	if _, err := b.PeekTimeout(make([]byte, 10), 20*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("returned before the deadline")
	}
}

func TestReadBlocksUntilWrite(t *testing.T) {
	t.Parallel()

	b, _ := New(188)
	done := make(chan int, 1)
	go func() {
		n, _ := b.Read(make([]byte, 188))
		done <- n
	}()

	time.Sleep(10 * time.Millisecond)
	if err := b.Write(fill(50, 0)); err != nil {
		t.Fatal(err)
	}
	select {
	case n := <-done:
		if n != 50 {
			t.Errorf("short read = %d, want 50", n)
		}
	case <-time.After(time.Second):
		t.Fatal("reader not woken by write")
	}
}

func TestDisable(t *testing.T) {
	t.Parallel()

	b, _ := New(188)
	peekErr := make(chan error, 1)
	go func() {
		_, err := b.Peek(make([]byte, 10))
		peekErr <- err
	}()

	time.Sleep(10 * time.Millisecond)
	b.Disable()
	select {
	case err := <-peekErr:
		if !errors.Is(err, ErrDisabled) {
			t.Errorf("peek err = %v, want ErrDisabled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Disable did not wake the peeker")
	}

	if !b.Disabled() {
		t.Error("Disabled = false")
	}
	if err := b.Write([]byte{1}); !errors.Is(err, ErrDisabled) {
		t.Errorf("write err = %v, want ErrDisabled", err)
	}
	if _, err := b.Read(make([]byte, 1)); !errors.Is(err, ErrDisabled) {
		t.Errorf("read err = %v, want ErrDisabled", err)
	}
}

func TestDisableKeepsUnreadData(t *testing.T) {
	t.Parallel()

	b, _ := New(188)
	_ = b.Write(fill(20, 0))
	b.Disable()

	got, err := io.ReadAll(b.Reader())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 20 {
		t.Errorf("drained %d bytes, want 20", len(got))
	}
}

func TestPeekReaderBudget(t *testing.T) {
	t.Parallel()

	b, _ := New(188 * 2)
	_ = b.Write(fill(188, 0))

	got, err := io.ReadAll(b.PeekReader(30 * time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 188 {
		t.Errorf("peeked %d bytes, want 188", len(got))
	}
	if b.Unread() != 188 {
		t.Errorf("PeekReader consumed data: Unread = %d", b.Unread())
	}
}
