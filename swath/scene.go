package swath

import "fmt"

// Scene is an ordered mapping from product name to Product. Order is the
// order products were added, which the remapper preserves in its output.
type Scene struct {
	names    []string
	products map[string]*Product
}

func NewScene() *Scene {
	return &Scene{products: map[string]*Product{}}
}

func (s *Scene) Add(p *Product) error {
	if _, ok := s.products[p.Name]; ok {
		return fmt.Errorf("scene already contains product %q", p.Name)
	}
	s.names = append(s.names, p.Name)
	s.products[p.Name] = p
	return nil
}

func (s *Scene) Get(name string) (*Product, bool) {
	p, ok := s.products[name]
	return p, ok
}

// Names returns product names in insertion order.
func (s *Scene) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

func (s *Scene) Len() int { return len(s.names) }

// Products returns products in insertion order.
func (s *Scene) Products() []*Product {
	out := make([]*Product, 0, len(s.names))
	for _, n := range s.names {
		out = append(out, s.products[n])
	}
	return out
}

// GriddedScene mirrors Scene for remapped products.
type GriddedScene struct {
	names    []string
	products map[string]*GriddedProduct
}

func NewGriddedScene() *GriddedScene {
	return &GriddedScene{products: map[string]*GriddedProduct{}}
}

func (s *GriddedScene) Add(p *GriddedProduct) error {
	if _, ok := s.products[p.Name]; ok {
		return fmt.Errorf("gridded scene already contains product %q", p.Name)
	}
	s.names = append(s.names, p.Name)
	s.products[p.Name] = p
	return nil
}

func (s *GriddedScene) Get(name string) (*GriddedProduct, bool) {
	p, ok := s.products[name]
	return p, ok
}

func (s *GriddedScene) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

func (s *GriddedScene) Len() int { return len(s.names) }

func (s *GriddedScene) Products() []*GriddedProduct {
	out := make([]*GriddedProduct, 0, len(s.names))
	for _, n := range s.names {
		out = append(out, s.products[n])
	}
	return out
}
