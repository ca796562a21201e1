package settings

import "os"

// Settings holds the options shared by the udfinfo commands.
type Settings struct {
	LogLevel      string
	FoldCase      bool
	MaxReadBlocks int
	AllowOther    bool
	HumanSizes    bool
}

func Default() Settings {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "warn"
	}
	return Settings{
		LogLevel:      level,
		FoldCase:      false,
		MaxReadBlocks: 512,
		AllowOther:    false,
		HumanSizes:    true,
	}
}
