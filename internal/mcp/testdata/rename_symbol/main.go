package main

import (
	"fmt"

	"example.com/calc/calc"
)

func main() {
	fmt.Println(calc.Add(1, 2), calc.Twice(3))
}
