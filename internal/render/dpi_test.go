package render

import (
	"errors"
	"testing"
)

func TestResolveDPI(t *testing.T) {
	tests := []struct {
		name   string
		geom   PageGeometry
		target int
		want   int
	}{
		{"letter portrait", PageGeometry{Width: 612, Height: 792}, 1800, 164},
		{"letter landscape", PageGeometry{Width: 792, Height: 612}, 1800, 164},
		{"a4 portrait", PageGeometry{Width: 595.28, Height: 841.89}, 1800, 154},
		{"square", PageGeometry{Width: 720, Height: 720}, 1800, 180},
		{"tiny target floors at one", PageGeometry{Width: 14400, Height: 14400}, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveDPI(tt.geom, tt.target)
			if err != nil {
				t.Fatalf("ResolveDPI() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveDPI() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestResolveDPI_ScaleInvariant(t *testing.T) {
	base := PageGeometry{Width: 612, Height: 792}
	doubled := PageGeometry{Width: 1224, Height: 1584}

	d1, err := ResolveDPI(base, 1800)
	if err != nil {
		t.Fatal(err)
	}
	d2, err := ResolveDPI(doubled, 1800)
	if err != nil {
		t.Fatal(err)
	}
	if d1 != 2*d2 {
		t.Errorf("doubling page size: dpi %d -> %d, want half", d1, d2)
	}
}

func TestResolveDPI_InvalidGeometry(t *testing.T) {
	tests := []PageGeometry{
		{Width: 0, Height: 0},
		{Width: 612, Height: 0},
		{Width: 0, Height: 792},
		{Width: -1, Height: 792},
	}
	for _, g := range tests {
		if _, err := ResolveDPI(g, 1800); !errors.Is(err, ErrInvalidGeometry) {
			t.Errorf("ResolveDPI(%v) error = %v, want ErrInvalidGeometry", g, err)
		}
	}
}

func TestResolveDPI_InvalidTarget(t *testing.T) {
	_, err := ResolveDPI(PageGeometry{Width: 612, Height: 792}, 0)
	if err == nil {
		t.Fatal("expected error for zero target")
	}
	if errors.Is(err, ErrInvalidGeometry) {
		t.Error("zero target is not a geometry error")
	}
}

func TestScale(t *testing.T) {
	if got := Scale(144); got != 2 {
		t.Errorf("Scale(144) = %v, want 2", got)
	}
}
