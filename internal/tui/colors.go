package tui

// Color constants for the crewclock theme
const (
	ColorCardBackground = "#1B1530" // Dark purple
	ColorBorder         = "#3A3F55" // Grey-blue

	// Text Colors
	ColorPrimaryText   = "#E6EAF2" // Titles, task names
	ColorSecondaryText = "#B1B8C7" // Labels, subtle purple-tinted grey
	ColorDisabledText  = "#6D7383" // Muted values
	ColorHelpText      = "240"     // Dark grey for help text

	// Accent Colors (Purple theme)
	ColorAccentMain   = "#7C3AED" // Logo, borders
	ColorAccentBright = "#A78BFA" // Highlights, big numbers

	// State Colors
	ColorError   = "#EF4444" // Failed drains
	ColorSuccess = "#22C55E" // Online, completed tasks
	ColorWarning = "#F59E0B" // Offline, pending uploads
)
