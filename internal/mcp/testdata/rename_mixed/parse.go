package mixed

import "strconv"

func parse(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func Total(a, b string) int {
	return parse(a) + parse(b)
}
