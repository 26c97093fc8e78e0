package memory

import "fmt"

// Stack and frames - the root registry.
//
// The stack is a bounded byte-addressed region with a cursor. Opening a
// frame captures the cursor and reserves a fixed header; each local
// registration pushes one handle slot. Closing a frame releases every
// local through the collector and restores the cursor to where the frame
// found it.
//
// Frames close in strict LIFO order. Closing an outer frame while an
// inner one is open, or closing a frame twice, is a fatal programmer
// error and panics; it is never a recoverable result.

// frameHeaderSize is the stack cost of one open frame, covering the saved
// cursor and frame bookkeeping.
const frameHeaderSize = 16

// localSlotSize is the stack cost of one registered local.
const localSlotSize = referenceWidth

// Stack holds the sequence of open frames for one execution context,
// innermost last.
type Stack struct {
	capacity int
	cursor   int
	frames   []*Frame

	// localCap bounds locals per frame; 0 = bounded only by stack bytes.
	localCap int

	heap      *Heap
	collector *Collector
}

// NewStack creates a stack with the given byte capacity and per-frame
// local cap (0 = no per-frame cap), rooting into heap via collector.
func NewStack(capacity, localCap int, heap *Heap, collector *Collector) *Stack {
	return &Stack{
		capacity:  capacity,
		localCap:  localCap,
		heap:      heap,
		collector: collector,
	}
}

// Frame is one open lexical scope: an ordered set of object roots plus
// the cursor position to restore when the scope exits.
type Frame struct {
	stack           *Stack
	originalPointer int
	locals          []Handle
	closed          bool
}

// Open pushes a new frame, capturing the current cursor as the position
// to restore at close. Fails with ErrStackOverflow when the frame header
// does not fit.
func (s *Stack) Open() (*Frame, error) {
	if s.cursor+frameHeaderSize > s.capacity {
		return nil, fmt.Errorf("%w: frame header needs %d bytes, %d of %d in use",
			ErrStackOverflow, frameHeaderSize, s.cursor, s.capacity)
	}
	f := &Frame{
		stack:           s,
		originalPointer: s.cursor,
	}
	s.cursor += frameHeaderSize
	s.frames = append(s.frames, f)
	return f, nil
}

// Depth returns the number of open frames.
func (s *Stack) Depth() int { return len(s.frames) }

// Cursor returns the current cursor position in bytes.
func (s *Stack) Cursor() int { return s.cursor }

// Capacity returns the stack's byte capacity.
func (s *Stack) Capacity() int { return s.capacity }

// OpenFrames returns the open frames, outermost first. The slice is a
// copy; the frames are live.
func (s *Stack) OpenFrames() []*Frame {
	out := make([]*Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

// AddLocal registers the object behind handle as a root of this frame,
// incrementing its reference count. Fails with ErrStackOverflow when the
// slot does not fit or the frame's local cap is reached, and with
// ErrInvalidReference when the handle is stale.
func (f *Frame) AddLocal(handle Handle) error {
	if f.closed {
		panic("memory: AddLocal on closed frame")
	}
	s := f.stack
	if s.localCap > 0 && len(f.locals) >= s.localCap {
		return fmt.Errorf("%w: frame holds %d of %d locals",
			ErrStackOverflow, len(f.locals), s.localCap)
	}
	if s.cursor+localSlotSize > s.capacity {
		return fmt.Errorf("%w: local slot needs %d bytes, %d of %d in use",
			ErrStackOverflow, localSlotSize, s.cursor, s.capacity)
	}
	obj, err := s.heap.Get(handle)
	if err != nil {
		return err
	}

	obj.refCount++
	s.collector.stats.Retains++
	obj.stackRefs++
	obj.allocType = AllocStackRooted

	s.cursor += localSlotSize
	f.locals = append(f.locals, handle)
	return nil
}

// Close releases every local of this frame in registration order and
// restores the stack cursor. Must be called exactly once, and only while
// this frame is the innermost open frame.
func (f *Frame) Close() {
	if f.closed {
		panic("memory: frame closed twice")
	}
	s := f.stack
	if len(s.frames) == 0 || s.frames[len(s.frames)-1] != f {
		panic(fmt.Sprintf("memory: non-LIFO frame close: %d inner frame(s) still open",
			f.innerFramesOpen()))
	}
	s.frames = s.frames[:len(s.frames)-1]
	f.closed = true

	// Registration order. Reference-count arithmetic is commutative, so
	// any order is correct; a fixed one keeps traces reproducible.
	for _, handle := range f.locals {
		obj, ok := s.heap.objs[handle]
		if !ok || obj == nil || obj.freed {
			panic(fmt.Sprintf("memory: frame local %d vanished while rooted", handle))
		}
		obj.stackRefs--
		if obj.stackRefs == 0 {
			obj.allocType = AllocHeapOnly
		}
		s.collector.release(obj)
	}
	f.locals = nil
	s.cursor = f.originalPointer
}

// Locals returns a copy of the frame's registered roots in insertion
// order.
func (f *Frame) Locals() []Handle {
	out := make([]Handle, len(f.locals))
	copy(out, f.locals)
	return out
}

// LocalCount returns the number of registered roots.
func (f *Frame) LocalCount() int { return len(f.locals) }

// OriginalPointer returns the cursor position captured at frame open.
func (f *Frame) OriginalPointer() int { return f.originalPointer }

// Closed reports whether the frame has been closed.
func (f *Frame) Closed() bool { return f.closed }

// innerFramesOpen counts frames opened after f that are still open.
func (f *Frame) innerFramesOpen() int {
	for i, open := range f.stack.frames {
		if open == f {
			return len(f.stack.frames) - i - 1
		}
	}
	return 0
}
