package format

import "testing"

func TestHumanBytes(t *testing.T) {
	cases := map[int64]string{
		0:             "0 B",
		512:           "512 B",
		2048:          "2.0 KB",
		1500000:       "1.5 MB",
		2500000000:    "2.5 GB",
		3000000000000: "3.0 TB",
	}
	for in, want := range cases {
		if got := HumanBytes(in); got != want {
			t.Errorf("HumanBytes(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestHumanNumber(t *testing.T) {
	cases := map[uint64]string{
		999:        "999",
		30522:      "31K",
		7000000:    "7M",
		2000000000: "2B",
	}
	for in, want := range cases {
		if got := HumanNumber(in); got != want {
			t.Errorf("HumanNumber(%d) = %q, want %q", in, got, want)
		}
	}
}