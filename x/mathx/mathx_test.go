package mathx

import "testing"

func TestClampBetween(t *testing.T) {
	if Clamp(-5, 0, 10) != 0 || Clamp(15, 10, 0) != 10 || Clamp(7, 0, 10) != 7 {
		t.Fatal("clamp failed")
	}
	if !Between(25.0, -50.0, 120.0) || Between(121.0, 120.0, -50.0) {
		t.Fatal("between failed")
	}
	if Abs(-2.5) != 2.5 || Abs(3) != 3 {
		t.Fatal("abs failed")
	}
}

func TestRound(t *testing.T) {
	cases := []struct {
		v    float64
		d    int
		want float64
	}{
		{23.456, 1, 23.5},
		{0.126, 2, 0.13},
		{1.23449, 3, 1.234},
		{512.4, 0, 512},
	}
	for _, c := range cases {
		if got := Round(c.v, c.d); got != c.want {
			t.Fatalf("Round(%v,%d) = %v, want %v", c.v, c.d, got, c.want)
		}
	}
}

func TestMapFloatAndADC(t *testing.T) {
	if got := MapFloat(5, 0, 10, 0, 100); got != 50 {
		t.Fatalf("MapFloat = %v", got)
	}
	if got := MapFloat(1, 1, 1, 3, 9); got != 3 {
		t.Fatalf("degenerate MapFloat = %v", got)
	}
	if got := ADCVolts(4095, 4095, 3.3); Abs(got-3.3) > 1e-9 {
		t.Fatalf("ADCVolts full scale = %v", got)
	}
	if got := ADCVolts(100, 0, 3.3); got != 0 {
		t.Fatalf("ADCVolts zero scale = %v", got)
	}
}
