package chat

import "fmt"

// User-facing texts.
const (
	TextWelcome = "👋 Welcome! Use /next to find a chat partner.\nType /commands to see all available commands."

	TextCommands = "📖 Available commands:\n" +
		"/start - Start the bot\n" +
		"/next - Find a chat partner\n" +
		"/stop - End the chat\n" +
		"/report - Report your partner to admin\n" +
		"/commands - Show this list of commands"

	TextBlockedStart   = "You are blocked and cannot use the bot."
	TextBlockedFeature = "You are blocked and cannot use this feature."

	TextNextCooldown   = "⏳ Please wait a few seconds before using /next again."
	TextReportCooldown = "⏳ Please wait a few seconds before sending another report."

	TextUpgraded = "✅ You are subscribed to our channel! The limit has been completely removed. 🚀"

	TextPartnerLeft    = "🔴 Your partner has left the chat."
	TextYouLeft        = "🔴 You left the chat. Searching for a new partner..."
	TextPartnerFound   = "🔗 Partner found! Type /commands to see options."
	TextPartnerStopped = "🔴 Your partner ended the chat (/stop)."
	TextPartnerBlocked = "🔴 Your partner was blocked by the admin."
	TextYouStopped     = "🔴 You ended the chat.\n\nType /commands to see available options."
	TextNotInChat      = "You are not in a chat. If you were in the queue, you have been removed.\n\nType /commands to see available options."

	TextQueued = "⏳ You have been added to the queue. Please wait for a partner.\n\n" +
		"Available commands:\n" +
		"/stop - leave the queue\n" +
		"/report - report your partner\n" +
		"/next - find a new partner\n" +
		"/commands - show all commands"

	TextNothingToReport = "You are not in a chat, nothing to report."
	TextReportSent      = "✅ Report sent to admin. Thank you!"

	TextStatsDenied   = "This command is only available to the admin."
	TextBlockDenied   = "Only the admin can block users."
	TextUnblockDenied = "Only the admin can unblock users."
	TextBlockUsage    = "Usage: /block <user_id>"
	TextUnblockUsage  = "Usage: /unblock <user_id>"
	TextInvalidUserID = "Invalid user_id."

	TextYouAreBlocked   = "You have been blocked. You cannot use the bot."
	TextYouAreUnblocked = "You have been unblocked. You can use the bot again."

	TextNoPartner      = "❗ You do not have an active conversation partner. Use /next."
	TextDeliveryFailed = "Failed to deliver the message."
	TextOnlyText       = "🚫 Only text messages are allowed."
	TextInvalidMessage = "⚠️ This message cannot be sent."
	TextRetry          = "⚠️ Something went wrong. Please try again."
)

func textQuotaExceeded(limit int, channel string) string {
	return fmt.Sprintf("⛔ You have used %d searches this hour.\n\n👉 Subscribe to our channel to remove the limit: %s", limit, channel)
}

func textReportHeader(reporter, reported int64) string {
	return fmt.Sprintf("📣 Report from %d about %d. Last partner messages (up to 5):", reporter, reported)
}

func textReportEmpty(reporter, reported int64) string {
	return fmt.Sprintf("Report from %d about %d. No messages found.", reporter, reported)
}

func textReportFooter(reporter, reported int64) string {
	return fmt.Sprintf("End of report. Reporter: %d, Reported: %d", reporter, reported)
}

func textUserBlocked(id int64) string   { return fmt.Sprintf("User %d blocked.", id) }
func textUserUnblocked(id int64) string { return fmt.Sprintf("User %d unblocked.", id) }

func textStats(users, activeChats, reports, queue int) string {
	return fmt.Sprintf("📊 Stats:\n- Users in DB: %d\n- Active chats: %d\n- Reports: %d\n- In queue: %d\n",
		users, activeChats, reports, queue)
}
