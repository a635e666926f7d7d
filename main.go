package main

import "github.com/edgeflare/pgsynth/cmd/pgsynth"

func main() {
	pgsynth.Main()
}
