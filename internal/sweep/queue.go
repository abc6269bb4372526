package sweep

import (
	"context"
	"iter"
	"path/filepath"

	"github.com/sells-group/claims-cli/internal/layout"
)

// Item is one file to process.
type Item struct {
	Name string
	Path string
}

// Queue yields the work items of one sweep. Items may be called more than
// once; each call starts from the beginning.
type Queue interface {
	Items(ctx context.Context) iter.Seq2[Item, error]
}

// DirQueue lists the files of a directory whose name satisfies Match, in
// lexicographic order. The listing is taken when iteration starts.
type DirQueue struct {
	Dir   string
	Match func(name string) bool
}

// NewDirQueue creates a DirQueue over the PDF files in dir.
func NewDirQueue(dir string) *DirQueue {
	return &DirQueue{Dir: dir, Match: layout.IsPDF}
}

func (q *DirQueue) Items(ctx context.Context) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		match := q.Match
		if match == nil {
			match = layout.IsPDF
		}
		names, err := layout.ListFiles(q.Dir, match)
		if err != nil {
			yield(Item{}, err)
			return
		}
		for _, name := range names {
			if ctx.Err() != nil {
				yield(Item{}, ctx.Err())
				return
			}
			if !yield(Item{Name: name, Path: filepath.Join(q.Dir, name)}, nil) {
				return
			}
		}
	}
}

// ListQueue is a fixed list of items, yielded in order.
type ListQueue []Item

func (q ListQueue) Items(ctx context.Context) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		for _, it := range q {
			if ctx.Err() != nil {
				yield(Item{}, ctx.Err())
				return
			}
			if !yield(it, nil) {
				return
			}
		}
	}
}
