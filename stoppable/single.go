////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package stoppable

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// Error message.
const toStoppingErr = "failed to set the status of single stoppable %q to " +
	"stopping when status is %s instead of %s"

// Single stops a single goroutine through its quit channel. The goroutine
// acknowledges with ToStopped once it has exited.
type Single struct {
	name   string
	quit   chan struct{}
	done   chan struct{}
	status uint32
	once   sync.Once
}

// NewSingle returns a new running Single.
func NewSingle(name string) *Single {
	return &Single{
		name: name,
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Name returns the name of the Single.
func (s *Single) Name() string {
	return s.name
}

// GetStatus returns the status of the Single.
func (s *Single) GetStatus() Status {
	return Status(atomic.LoadUint32(&s.status))
}

// IsRunning returns true if the Single is marked as running.
func (s *Single) IsRunning() bool {
	return s.GetStatus() == Running
}

// IsStopped returns true once the goroutine has acknowledged the stop.
func (s *Single) IsStopped() bool {
	return s.GetStatus() == Stopped
}

// Quit returns a channel that is closed when the Single is told to stop.
func (s *Single) Quit() <-chan struct{} {
	return s.quit
}

// Done returns a channel that is closed once ToStopped has been called.
func (s *Single) Done() <-chan struct{} {
	return s.done
}

// ToStopped marks the Single as stopped. It is called by the goroutine on
// its way out and may be called without a prior Close when the goroutine
// exits on its own.
func (s *Single) ToStopped() {
	prev := atomic.SwapUint32(&s.status, uint32(Stopped))
	if Status(prev) == Stopped {
		return
	}
	close(s.done)
	jww.DEBUG.Printf("Single stoppable %q stopped", s.name)
}

// Close signals the goroutine to stop. It does not wait for it; use Done.
// Closing twice returns an error.
func (s *Single) Close() error {
	err := errors.Errorf(toStoppingErr, s.name, s.GetStatus(), Running)
	s.once.Do(func() {
		if !atomic.CompareAndSwapUint32(&s.status, uint32(Running),
			uint32(Stopping)) {
			return
		}
		err = nil
		jww.TRACE.Printf("Closing quit channel of single stoppable %q",
			s.name)
		close(s.quit)
	})
	return err
}
