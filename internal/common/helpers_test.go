package common

import "testing"

func TestFormatMoney(t *testing.T) {
	cases := []struct {
		amount int64
		want   string
	}{
		{400, "₹400"},
		{0, "₹0"},
		{-95, "-₹95"},
	}
	for _, c := range cases {
		if got := FormatMoney(c.amount); got != c.want {
			t.Fatalf("FormatMoney(%d) = %q, ожидали %q", c.amount, got, c.want)
		}
	}
}

func TestPluralizeRupees(t *testing.T) {
	cases := []struct {
		n    int64
		want string
	}{
		{1, "рупия"},
		{2, "рупии"},
		{5, "рупий"},
		{11, "рупий"},
		{21, "рупия"},
		{114, "рупий"},
		{-3, "рупии"},
	}
	for _, c := range cases {
		if got := PluralizeRupees(c.n); got != c.want {
			t.Fatalf("PluralizeRupees(%d) = %q, ожидали %q", c.n, got, c.want)
		}
	}
}

func TestPluralizePlayers(t *testing.T) {
	cases := []struct {
		n    int
		want string
	}{
		{1, "игрок"},
		{3, "игрока"},
		{7, "игроков"},
		{12, "игроков"},
	}
	for _, c := range cases {
		if got := PluralizePlayers(c.n); got != c.want {
			t.Fatalf("PluralizePlayers(%d) = %q, ожидали %q", c.n, got, c.want)
		}
	}
}
