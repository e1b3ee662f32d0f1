package telegram

// isAdmin checks if userID is one of the configured moderators.
func (reportBot *Bot) isAdmin(userID int64) bool {
	return reportBot.cfg.IsAdmin(userID)
}
