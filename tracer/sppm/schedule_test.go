package sppm

import (
	"math"
	"testing"
)

func TestRadiusScheduleValues(t *testing.T) {
	s, err := NewRadiusSchedule(0.05, 0.7)
	if err != nil {
		t.Fatal(err)
	}

	first := s.Advance()
	exp := 0.05 * math.Sqrt(0.7)
	if math.Abs(float64(first)-exp) > 1e-6 {
		t.Fatalf("expected radius %f after iteration 0; got %f", exp, first)
	}
	if math.Abs(float64(first)-0.04183) > 1e-5 {
		t.Fatalf("expected radius ~0.04183; got %f", first)
	}

	for index := 1; index < 10; index++ {
		s.Advance()
	}
	if s.Iteration() != 10 {
		t.Fatalf("expected 10 iterations; got %d", s.Iteration())
	}
	if s.Radius() >= first {
		t.Fatalf("expected radius after 10 iterations (%f) to be below %f", s.Radius(), first)
	}
}

func TestRadiusScheduleIsNonIncreasing(t *testing.T) {
	specs := []float32{0.01, 0.3, 0.5, 0.7, 0.99}
	for specIndex, alpha := range specs {
		s, err := NewRadiusSchedule(1, alpha)
		if err != nil {
			t.Fatal(err)
		}

		prev := s.Radius()
		for index := 0; index < 1000; index++ {
			r := s.Advance()
			if r > prev {
				t.Fatalf("[spec %d] radius increased at iteration %d: %f > %f", specIndex, index, r, prev)
			}
			if r <= 0 {
				t.Fatalf("[spec %d] radius became non-positive at iteration %d", specIndex, index)
			}
			prev = r
		}
	}
}

func TestRadiusScheduleReset(t *testing.T) {
	s, err := NewRadiusSchedule(0.2, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	for index := 0; index < 5; index++ {
		s.Advance()
	}

	s.Reset()
	if s.Radius() != 0.2 || s.Iteration() != 0 {
		t.Fatalf("expected radius 0.2 at iteration 0; got %f at %d", s.Radius(), s.Iteration())
	}
}

func TestRadiusScheduleErrors(t *testing.T) {
	type spec struct {
		r0, alpha float32
		expErr    error
	}
	specs := []spec{
		{0, 0.5, ErrInvalidRadius},
		{-1, 0.5, ErrInvalidRadius},
		{1, 0, ErrInvalidAlpha},
		{1, 1, ErrInvalidAlpha},
		{1, 0.5, nil},
	}

	for specIndex, s := range specs {
		if _, err := NewRadiusSchedule(s.r0, s.alpha); err != s.expErr {
			t.Fatalf("[spec %d] expected error %v; got %v", specIndex, s.expErr, err)
		}
	}
}
