package main

import "github.com/openfast-rag/openfast-rag-backend/internal/cli"

func main() {
	cli.Execute()
}
