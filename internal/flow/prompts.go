package flow

// User-visible message texts for the guided report flow. Kept together so
// wording changes do not touch engine logic.
const (
	msgMenu = "👋 Welcome to SafeBot!\n\n" +
		"/report — report a safety incident\n" +
		"/status — check your verification status\n" +
		"/cancel — cancel the current report\n" +
		"/help — how this bot works"

	msgHelp = "ℹ️ SafeBot collects campus safety incident reports.\n\n" +
		"Start with /report. You will be asked for a title, category, " +
		"location, when it happened, and a description. First-time reporters " +
		"verify their student identity once through a secure link.\n\n" +
		"Send cancel at any point to abandon a report."

	msgNudge = "❌ Sorry, I didn't understand that. Please use the menu commands (/report, /status, /help)."

	msgTooManyInvalid = "⚠️ Too many invalid responses.\nReturning to the main menu.\n\n" + msgMenu

	msgCancelled = "🚫 Report cancelled. Nothing was saved. Send /report to start again."

	msgNothingToCancel = "There is no report in progress. Send /report to start one."

	msgPromptTitle = "📝 Let's file your report. First, give the incident a short title:"

	msgPromptLocation = "📍 Where did this happen? (building, room, or area)"

	msgPromptOccurredAt = "🕐 When did it occur? Use a date like 2024-05-01 10:00, or a phrase like \"yesterday 4pm\"."

	msgPromptDescription = "🗒️ Finally, describe what happened in as much detail as you can:"

	msgEmptyInput = "That can't be empty — please try again."

	msgBadDate = "❌ I couldn't read that as a date and time. Please use a format like 2024-05-01 10:00."

	msgSubmitFailed = "😞 Something went wrong saving your report. Nothing was stored — " +
		"please send /report to try again."
)

// Templates that need formatting live next to the constants above.
const (
	tmplPromptCategory = "🏷️ What category best fits? (%s)"

	tmplBadCategory = "❌ I couldn't match that to a category. Please reply with one of: %s."

	tmplVerifyRequired = "🔐 Before you can report, we need to verify you are a registered student.\n\n" +
		"Open this link and enter your full name and index number:\n%s\n\n" +
		"The link is valid for %d minutes. I'll let you know here once you're verified."

	tmplVerified = "✅ Thanks %s, you're verified! Send /report to file a safety incident."

	tmplSubmitted = "✅ Your report has been submitted. Reference: %s\n\n" +
		"Campus security will review it shortly."

	tmplStatusVerified = "✅ You are verified as %s (%s). Send /report to file an incident."
)

const msgStatusUnverified = "You are not verified yet. Send /report and follow the verification link first."
