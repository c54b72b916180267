package tensor

import "testing"

func TestShapeNumElements(t *testing.T) {
	cases := []struct {
		shape Shape
		want  int
	}{
		{Shape{}, 1},
		{Shape{5}, 5},
		{Shape{2, 3, 4}, 24},
		{Shape{2, 0, 4}, 0},
	}
	for _, c := range cases {
		if got := c.shape.NumElements(); got != c.want {
			t.Errorf("%v.NumElements() = %d, want %d", c.shape, got, c.want)
		}
	}
}

func TestShapeValidate(t *testing.T) {
	if err := (Shape{2, 0, 3}).Validate(); err != nil {
		t.Errorf("zero dims are legal: %v", err)
	}
	if err := (Shape{2, -1}).Validate(); err == nil {
		t.Error("negative dim accepted")
	}
}

func TestShapeStrides(t *testing.T) {
	got := Shape{2, 3, 4}.Strides()
	want := []int{12, 4, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("strides = %v, want %v", got, want)
		}
	}
	if len(Shape{}.Strides()) != 0 {
		t.Fatal("scalar strides should be empty")
	}
}

func TestBroadcast(t *testing.T) {
	cases := []struct {
		a, b, want Shape
	}{
		{Shape{2, 3}, Shape{2, 3}, Shape{2, 3}},
		{Shape{2, 3}, Shape{3}, Shape{2, 3}},
		{Shape{2, 1}, Shape{1, 3}, Shape{2, 3}},
		{Shape{4, 1, 5}, Shape{3, 1}, Shape{4, 3, 5}},
		{Shape{}, Shape{2, 2}, Shape{2, 2}},
	}
	for _, c := range cases {
		got, err := Broadcast(c.a, c.b)
		if err != nil {
			t.Errorf("Broadcast(%v, %v): %v", c.a, c.b, err)
			continue
		}
		if !got.Equal(c.want) {
			t.Errorf("Broadcast(%v, %v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
	if _, err := Broadcast(Shape{2, 3}, Shape{2, 4}); err == nil {
		t.Error("incompatible shapes broadcast without error")
	}
}
