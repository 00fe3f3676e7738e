package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/service"
)

// Tokens are normally minted by the school's identity service; this tool
// signs one with the shared secret for local testing.
var rootCmd = &cobra.Command{
	Use:          "issue-token",
	Short:        "Sign a student JWT",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		studentID, _ := cmd.Flags().GetInt("student")
		classID, _ := cmd.Flags().GetInt("class")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		if studentID <= 0 {
			return fmt.Errorf("--student must be positive")
		}

		token, err := service.NewAuthService(config.Load()).SignStudentToken(studentID, classID, ttl)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	rootCmd.Flags().Int("student", 0, "Student id")
	rootCmd.Flags().Int("class", 0, "Class id")
	rootCmd.Flags().Duration("ttl", 4*time.Hour, "Token lifetime")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
