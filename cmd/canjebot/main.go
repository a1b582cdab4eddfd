// Package main is the canjebot entry point.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "canjebot",
	Short: "Job application pipeline",
	Long: "canjebot watches configured job boards, filters postings against " +
		"eligibility rules, drafts application documents, and submits them " +
		"after explicit human approval.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
