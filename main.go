package main

import "nativedeps/internal/nativedeps"

func main() {
	nativedeps.Main()
}
