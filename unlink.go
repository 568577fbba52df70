package hio

import (
	"context"
	"fmt"
)

// UnlinkMode selects which dataset instance(s) of a name get removed.
type UnlinkMode int

const (
	// UnlinkCurrent removes exactly the instance id given.
	UnlinkCurrent UnlinkMode = iota
	// UnlinkFirst removes only the oldest instance (lowest id) of the name.
	UnlinkFirst
	// UnlinkAll removes every instance of the name.
	UnlinkAll
)

// Unlink removes dataset instance(s) of name according to mode. Only rank 0
// touches the filesystem; an all-reduce-min after the barrier hands its
// outcome to every rank, so every rank returns the same result and callers
// don't need to guard this call with their own rank check.
func (c *Context) Unlink(ctx context.Context, name string, id int64, mode UnlinkMode) error {
	m, err := c.selectModule(0)
	if err != nil {
		return NewError(NotAvailable, c.Comm.Rank(), "Unlink", name, err)
	}

	var targets []int64
	switch mode {
	case UnlinkCurrent:
		targets = []int64{id}
	case UnlinkFirst, UnlinkAll:
		headers, err := m.DatasetList(ctx, name)
		if err != nil {
			return err
		}
		if len(headers) == 0 {
			return nil
		}
		if mode == UnlinkFirst {
			min := headers[0]
			for _, h := range headers[1:] {
				if h.ID < min.ID {
					min = h
				}
			}
			targets = []int64{min.ID}
		} else {
			for _, h := range headers {
				targets = append(targets, h.ID)
			}
		}
	}

	var firstErr error
	if c.Comm.Rank() == 0 {
		for _, t := range targets {
			if err := m.DatasetUnlink(ctx, name, t); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}

	if err := c.Comm.Barrier(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	localCode := 0
	if firstErr != nil {
		localCode = -1
	}
	if code, err := c.Comm.AllreduceMin(ctx, localCode); err != nil && firstErr == nil {
		firstErr = err
	} else if err == nil && code != 0 && firstErr == nil {
		firstErr = fmt.Errorf("dataset unlink failed on another rank")
	}
	if firstErr != nil {
		c.pushError(NewError(Generic, c.Comm.Rank(), "Unlink", name, firstErr))
	}
	return firstErr
}

// List enumerates every instance of name registered with the first
// available module.
func (c *Context) List(ctx context.Context, name string) ([]DatasetHeader, error) {
	m, err := c.selectModule(0)
	if err != nil {
		return nil, NewError(NotAvailable, c.Comm.Rank(), "List", name, err)
	}
	return m.DatasetList(ctx, name)
}
