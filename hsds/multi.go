package hsds

import (
	"fmt"
	"reflect"
	"sync"
)

// maxFanoutWorkers bounds the goroutines a multi-target operation runs at
// once.
const maxFanoutWorkers = 16

// MultiManager fans one read or write out over several datasets at once.
// Operations are best-effort: the first failure stops dispatching further
// targets, in-flight work drains, partial results are discarded, and the
// failure surfaces as a *FanoutError. Writes that already reached other
// targets are not rolled back.
type MultiManager struct {
	targets []*Dataset
}

// NewMultiManager builds a manager over the given targets.
func NewMultiManager(targets ...*Dataset) *MultiManager {
	return &MultiManager{targets: targets}
}

// Len returns the number of targets.
func (m *MultiManager) Len() int { return len(m.targets) }

// selectionFor resolves the selection for target i: none means the whole
// dataset, one applies everywhere, otherwise one per target.
func (m *MultiManager) selectionFor(sels []Selection, i int) (Selection, error) {
	switch len(sels) {
	case 0:
		return SelectAll(m.targets[i].Shape())
	case 1:
		return sels[0], nil
	case len(m.targets):
		return sels[i], nil
	default:
		return nil, fmt.Errorf("%w: %d selections for %d targets",
			ErrInvalidSelection, len(sels), len(m.targets))
	}
}

// fanout runs task per target under the worker bound. After the first
// failure no further targets start.
func (m *MultiManager) fanout(task func(i int) error) error {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr *FanoutError
		failed   bool
	)
	sem := make(chan struct{}, maxFanoutWorkers)

	for i := range m.targets {
		mu.Lock()
		stop := failed
		mu.Unlock()
		if stop {
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := task(i); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = &FanoutError{Index: i, Err: err}
				}
				failed = true
				mu.Unlock()
			}
		}(i)
	}

	wg.Wait()
	if firstErr != nil {
		return firstErr
	}
	return nil
}

// Read reads every target into the corresponding element of dests, each a
// pointer to a slice. Selections follow the selectionFor convention. On
// failure no dest is touched.
func (m *MultiManager) Read(dests []any, sels ...Selection) error {
	if len(dests) != len(m.targets) {
		return fmt.Errorf("%w: %d destinations for %d targets",
			ErrShapeMismatch, len(dests), len(m.targets))
	}

	// Read into scratch slices first so a failure leaves dests alone.
	scratch := make([]reflect.Value, len(dests))
	for i, dest := range dests {
		v := reflect.ValueOf(dest)
		if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Slice {
			return fmt.Errorf("destination %d must be a pointer to a slice, got %T", i, dest)
		}
		scratch[i] = reflect.New(v.Elem().Type())
	}

	err := m.fanout(func(i int) error {
		sel, err := m.selectionFor(sels, i)
		if err != nil {
			return err
		}
		return m.targets[i].ReadSelection(sel, scratch[i].Interface())
	})
	if err != nil {
		return err
	}

	for i, dest := range dests {
		reflect.ValueOf(dest).Elem().Set(scratch[i].Elem())
	}
	return nil
}

// Write writes each element of srcs to the corresponding target.
func (m *MultiManager) Write(srcs []any, sels ...Selection) error {
	if len(srcs) != len(m.targets) {
		return fmt.Errorf("%w: %d sources for %d targets",
			ErrShapeMismatch, len(srcs), len(m.targets))
	}

	return m.fanout(func(i int) error {
		sel, err := m.selectionFor(sels, i)
		if err != nil {
			return err
		}
		return m.targets[i].WriteSelection(sel, srcs[i])
	})
}
