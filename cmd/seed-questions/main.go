package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/database"
	"github.com/stemsi/exstem-engine/internal/logger"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/repository"
)

var rootCmd = &cobra.Command{
	Use:          "seed-questions",
	Short:        "Load a JSON question bank into PostgreSQL",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().String("file", "", "JSON file holding an array of questions")
	rootCmd.Flags().String("content", "", "Content (subject) the questions belong to")
	rootCmd.Flags().String("difficulty", model.DifficultyMedium, "Difficulty: easy, medium or hard")
	_ = rootCmd.MarkFlagRequired("file")
	_ = rootCmd.MarkFlagRequired("content")
}

func run(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")
	content, _ := cmd.Flags().GetString("content")
	difficulty, _ := cmd.Flags().GetString("difficulty")

	switch difficulty {
	case model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard:
	default:
		return fmt.Errorf("unknown difficulty %q", difficulty)
	}

	raw, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}
	var questions []model.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return fmt.Errorf("decode %s: %w", file, err)
	}
	for i, q := range questions {
		if err := q.Validate(); err != nil {
			return fmt.Errorf("question %d: %w", i+1, err)
		}
	}

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	n, err := repository.NewQuestionRepository(pool).BulkCreate(ctx, content, difficulty, questions)
	if err != nil {
		return fmt.Errorf("insert questions: %w", err)
	}

	log.Info().
		Int64("inserted", n).
		Str("content", content).
		Str("difficulty", difficulty).
		Msg("Questions seeded")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
