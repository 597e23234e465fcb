package serial

import (
	"cmp"
	"io"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/chatlink/ext/nulls"
)

// Inserter adds one decoded element to a container and returns the updated
// container. It is the sole point of variation between the container
// serializers: the container serializer itself never assumes which concrete
// container it is filling.
type Inserter[C, E any] func(C, E) C

// Container serializes any container of elements as the concatenation of
// Escape(encode(element)) '\0' in iteration order. Decoding splits, decodes
// each field and inserts the successes; elements that fail to decode are
// skipped, so the result may be shorter than the input.
type Container[C, E any] struct {
	Elem   Serializer[E]
	New    func() C
	Each   func(c C, fn func(E) error) error
	Insert Inserter[C, E]
}

func (c Container[C, E]) Serialize(f Format, v C, ctx Context, w io.Writer) error {
	return c.Each(v, func(e E) error {
		return writeField(c.Elem, f, e, ctx, w)
	})
}

func (c Container[C, E]) Unserialize(f Format, data []byte, ctx Context) (C, error) {
	out := c.New()
	for _, field := range nulls.SplitUnescapeNulls(data) {
		e, err := c.Elem.Unserialize(f, field, ctx)
		if err != nil {
			log.Debug().Err(err).Str("format", f.String()).Msg("skipping undecodable container element")
			continue
		}
		out = c.Insert(out, e)
	}
	return out, nil
}

// Slice serializes an ordered sequence; decoded elements are appended at the
// tail, preserving input order.
func Slice[E any](elem Serializer[E]) Container[[]E, E] {
	return Container[[]E, E]{
		Elem: elem,
		New:  func() []E { return nil },
		Each: eachSlice[E],
		Insert: func(c []E, e E) []E {
			return append(c, e)
		},
	}
}

// SortedSet serializes a set in ascending key order; duplicate decoded
// elements are ignored.
func SortedSet[E cmp.Ordered](elem Serializer[E]) Container[map[E]struct{}, E] {
	return Container[map[E]struct{}, E]{
		Elem: elem,
		New:  func() map[E]struct{} { return make(map[E]struct{}) },
		Each: func(c map[E]struct{}, fn func(E) error) error {
			for _, e := range sortedKeys(c) {
				if err := fn(e); err != nil {
					return err
				}
			}
			return nil
		},
		Insert: func(c map[E]struct{}, e E) map[E]struct{} {
			c[e] = struct{}{}
			return c
		},
	}
}

// SortedMultiset serializes a multiset kept as a sorted slice; duplicates are
// preserved and inserts maintain the canonical order.
func SortedMultiset[E cmp.Ordered](elem Serializer[E]) Container[[]E, E] {
	return Container[[]E, E]{
		Elem: elem,
		New:  func() []E { return nil },
		Each: eachSlice[E],
		Insert: func(c []E, e E) []E {
			i, _ := slices.BinarySearch(c, e)
			return slices.Insert(c, i, e)
		},
	}
}

// SortedMap serializes a key→value mapping in ascending key order; each
// element is a pair. A decoded pair whose key is already present is ignored.
func SortedMap[K cmp.Ordered, V any](key Serializer[K], val Serializer[V]) Container[map[K]V, PairOf[K, V]] {
	return Container[map[K]V, PairOf[K, V]]{
		Elem: Pair[K, V]{First: key, Second: val},
		New:  func() map[K]V { return make(map[K]V) },
		Each: func(c map[K]V, fn func(PairOf[K, V]) error) error {
			for _, k := range sortedKeys(c) {
				if err := fn(PairOf[K, V]{First: k, Second: c[k]}); err != nil {
					return err
				}
			}
			return nil
		},
		Insert: func(c map[K]V, e PairOf[K, V]) map[K]V {
			if _, exists := c[e.First]; !exists {
				c[e.First] = e.Second
			}
			return c
		},
	}
}

// SortedMultimap serializes a multimap kept as a slice of pairs sorted by
// key; duplicate keys are preserved in insertion order within a key.
func SortedMultimap[K cmp.Ordered, V any](key Serializer[K], val Serializer[V]) Container[[]PairOf[K, V], PairOf[K, V]] {
	return Container[[]PairOf[K, V], PairOf[K, V]]{
		Elem: Pair[K, V]{First: key, Second: val},
		New:  func() []PairOf[K, V] { return nil },
		Each: eachSlice[PairOf[K, V]],
		Insert: func(c []PairOf[K, V], e PairOf[K, V]) []PairOf[K, V] {
			i, _ := slices.BinarySearchFunc(c, e, func(a, b PairOf[K, V]) int {
				return cmp.Compare(a.First, b.First)
			})
			// Place after existing entries with the same key.
			for i < len(c) && c[i].First == e.First {
				i++
			}
			return slices.Insert(c, i, e)
		},
	}
}

func sortedKeys[K cmp.Ordered, V any](c map[K]V) []K {
	keys := make([]K, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func eachSlice[E any](c []E, fn func(E) error) error {
	for _, e := range c {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}
