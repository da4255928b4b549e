package service

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/mailmerge/mailmerge/internal/model"
)

const (
	subjectPreviewLen = 50
	bodyPreviewLen    = 100
)

const commandList = "Commands:\n" +
	"/send - start a mailing\n" +
	"/cancel - cancel\n" +
	"/help - help"

func welcomeText(firstName, sender string) string {
	return fmt.Sprintf("Hi, %s! 👋\n\n"+
		"🤖 I send personalized commercial offers to a list of recipients.\n"+
		"📤 Emails are sent from: %s\n\n%s", firstName, sender, commandList)
}

func helpText() string {
	return "ℹ️ HOW IT WORKS\n\n" +
		"1. /send and upload an Excel file (.xlsx or .xls) with an 'Email' column\n" +
		"2. Upload the offer file to attach (PDF, DOC, DOCX, ...)\n" +
		"3. Type the subject\n" +
		"4. Type the body. Use {Name}, {Company} and other column names to personalize it\n" +
		"5. Check the summary and press Send\n\n" + commandList
}

func askSpreadsheetText(maxFileSize int64, maxContacts int) string {
	return fmt.Sprintf("📊 UPLOAD CONTACTS\n\n"+
		"Send an Excel file with the recipients.\n"+
		"An 'Email' column is required.\n"+
		"At most %d MB, %d contacts.", maxFileSize/(1024*1024), maxContacts)
}

const (
	replyUnsupportedFormat = "❌ Unsupported file format.\nUpload an Excel file (.xlsx or .xls)."
	replyMissingEmail      = "❌ The file has no 'Email' column.\nAdd it and try again."
	replyUnreadable        = "❌ Could not read the file.\nMake sure it is a valid Excel file."
	replyUploadFailed      = "❌ File upload failed.\nPlease try again."
	replyNoSession         = "❌ Upload the Excel file first.\nCommand: /send"
	replyNotInFlow         = "🤔 Nothing in progress. Use /send to start a mailing."
	replySessionExpired    = "⌛ This mailing is no longer active. Use /send to start again."
	replyAskSubject        = "✉️ Type the email subject:"
	replyAskBody           = "📝 Type the email body.\n\nUse {Name}, {Company} and so on to personalize it."
	replyAskAttachment     = "📎 Upload the offer file (PDF, DOC, DOCX, ...)."
	replyAskConfirmation   = "👆 Press Send or Cancel under the summary."
	replyCancelled         = "❌ Cancelled"
	replySending           = "⏳ Sending emails...\nPlease wait..."
	replyConnectionFailed  = "❌ Could not connect to the mail server. Nothing was sent."
	replyDispatchFailed    = "❌ The mailing failed before any email was sent. Please start again with /send."
	InternalErrorText      = "❌ Something went wrong. Please try again or /cancel."
	buttonSend             = "✅ SEND"
	buttonCancel           = "❌ Cancel"
)

func tooLargeText(maxFileSize int64) string {
	return fmt.Sprintf("❌ The file is too large. The limit is %d MB.", maxFileSize/(1024*1024))
}

func tooManyContactsText(maxContacts int) string {
	return fmt.Sprintf("❌ Too many contacts. The limit is %d.", maxContacts)
}

func spreadsheetAcceptedText(count int) string {
	return fmt.Sprintf("✅ File received!\n\n👥 Contacts: %d\n\n%s", count, replyAskAttachment)
}

// promptFor re-asks for the input the stage is waiting on
func promptFor(stage model.Stage) string {
	switch stage {
	case model.StageAwaitingSpreadsheet:
		return "📊 Send the Excel file with the recipients (.xlsx or .xls)."
	case model.StageAwaitingAttachment:
		return replyAskAttachment
	case model.StageAwaitingSubject:
		return replyAskSubject
	case model.StageAwaitingBody:
		return replyAskBody
	case model.StageAwaitingConfirmation:
		return replyAskConfirmation
	default:
		return replyNotInFlow
	}
}

func summaryReply(s *model.Session, sender string) Reply {
	text := fmt.Sprintf("📋 CHECK THE DETAILS:\n\n"+
		"📁 File: %s\n"+
		"👥 Contacts: %d\n"+
		"📎 Attachment: %s\n"+
		"✉️ Subject: %s\n"+
		"📝 Body: %s\n\n"+
		"📧 Sending from: %s\n",
		s.SpreadsheetFilename,
		s.RecipientCount,
		s.AttachmentFilename,
		preview(s.Subject, subjectPreviewLen),
		preview(s.Body, bodyPreviewLen),
		sender,
	)
	return Reply{
		Text: text,
		Buttons: []Button{
			{Text: buttonSend, Data: CallbackConfirm},
			{Text: buttonCancel, Data: CallbackCancel},
		},
	}
}

// preview cuts s to n runes, marking the cut with "..."
func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func reportText(r *model.DispatchReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ MAILING COMPLETE!\n\n👥 Total: %d\n✅ Sent: %d\n❌ Errors: %d",
		r.Total, r.SuccessCount, r.ErrorCount)

	if r.ErrorCount == 0 {
		return b.String()
	}

	shown, more := r.Displayed()
	fmt.Fprintf(&b, "\n\n❌ Invalid emails (%d):\n", len(shown))
	b.WriteString(strings.Join(lo.Map(shown, func(addr string, _ int) string {
		return "  • " + addr
	}), "\n"))
	if more > 0 {
		fmt.Fprintf(&b, "\n... and %d more", more)
	}
	return b.String()
}
