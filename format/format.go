package format

import "fmt"

const (
	Byte     = 1
	KiloByte = Byte * 1000
	MegaByte = KiloByte * 1000
	GigaByte = MegaByte * 1000
	TeraByte = GigaByte * 1000
)

func HumanBytes(b int64) string {
	switch {
	case b > TeraByte:
		return fmt.Sprintf("%.1f TB", float64(b)/TeraByte)
	case b > GigaByte:
		return fmt.Sprintf("%.1f GB", float64(b)/GigaByte)
	case b > MegaByte:
		return fmt.Sprintf("%.1f MB", float64(b)/MegaByte)
	case b > KiloByte:
		return fmt.Sprintf("%.1f KB", float64(b)/KiloByte)
	default:
		return fmt.Sprintf("%d B", b)
	}
}

const (
	Thousand = 1000
	Million  = Thousand * 1000
	Billion  = Million * 1000
)

// HumanNumber formats counts such as vocabulary sizes, e.g. 30522 -> "31K".
func HumanNumber(n uint64) string {
	switch {
	case n >= Billion:
		return fmt.Sprintf("%.0fB", float64(n)/Billion)
	case n >= Million:
		return fmt.Sprintf("%.0fM", float64(n)/Million)
	case n >= Thousand:
		return fmt.Sprintf("%.0fK", float64(n)/Thousand)
	default:
		return fmt.Sprintf("%d", n)
	}
}
