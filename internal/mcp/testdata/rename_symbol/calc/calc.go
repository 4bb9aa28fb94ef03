package calc

func Add(a, b int) int {
	return a + b
}

func Twice(a int) int {
	return Add(a, a)
}
