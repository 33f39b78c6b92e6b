// Package i18n holds per-locale message templates and command patterns.
// Each locale is one data record; adding a language means adding a record
// to the map, no code changes elsewhere.
package i18n

import (
	"regexp"
	"strings"
	"time"
)

// Locale is the full set of templates and patterns for one language.
// Templates with %-verbs are meant for fmt.Sprintf; {botName} and
// {ownerName} placeholders are filled by Resolve.
type Locale struct {
	Tag string

	// System prompt building blocks.
	SystemIdentity          string
	GenderMale              string
	GenderFemale            string
	Tone                    string
	ResponseFormat          string
	MemoryHeader            string
	MemoryInstructions      string
	SendMessageInstructions string
	CurrentMessageHeader    string
	ExternalChatRules       string
	MessageHeader           string

	// Command responses.
	NoMemory               string
	MemoryTitle            string
	ForgetUsage            string
	ForgetNotFound         string // %s: key
	Forgot                 string // %s: key
	RemindUsage            string
	ReminderSet            string // %s: text, %s: local time
	SessionCleared         string
	NoActiveSession        string
	OutboundNotFound       string
	OutboundAlreadyHandled string // %d: id, %s: status
	OutboundApproved       string // %s: phone
	OutboundRejected       string // %s: phone
	OutboundConfirmation   string // %d: id, %s: phone, %s: content, %d: id, %d: id

	// Reminder command parsing. RemindPattern captures (text, amount, unit);
	// UnitDuration maps a lowercased unit capture to its base duration.
	RemindPattern *regexp.Regexp
	UnitDuration  func(unit string) time.Duration

	// Approve/reject outbound command verbs (matched after diacritic folding).
	ApproveCommand string
	RejectCommand  string

	// Daily summary.
	GoodMorning       string
	SystemStatus      string
	OvernightAlerts   string
	YesterdayActivity string
	MessagesProcessed string // %d: count
	Timezone          string

	// Heartbeat notices.
	ReminderNotice string // %s: reminder text
}

var pl = &Locale{
	Tag: "pl",

	SystemIdentity: "Jesteś {botName} - osobisty asystent AI {ownerName}. Komunikujesz się przez WhatsApp.",
	GenderMale:     `Jesteś mężczyzną — używaj męskich form gramatycznych (np. "zrobiłem", "sprawdziłem", "jestem gotowy").`,
	GenderFemale:   `Jesteś kobietą — używaj żeńskich form gramatycznych (np. "zrobiłam", "sprawdziłam", "jestem gotowa").`,
	Tone:           "Bądź zwięzły, konkretny, pomocny. Odpowiadaj po polsku, chyba że użytkownik pisze po angielsku.",
	ResponseFormat: `FORMATOWANIE ODPOWIEDZI — OBOWIĄZKOWE:
Każda Twoja odpowiedź MUSI zaczynać się od nagłówka z Twoim imieniem i separatorem:
{botName}
-----------
<treść odpowiedzi>
-----------
Nigdy nie pomijaj tego formatu. Zawsze zaczynaj od "{botName}" w pierwszej linii, potem "-----------" jako separator, treść, i zamykający "-----------".`,
	MemoryHeader: "--- PAMIĘĆ (zapamiętane fakty o użytkowniku) ---",
	MemoryInstructions: "--- INSTRUKCJE ---\n" +
		"Jeśli użytkownik powie coś co warto zapamiętać (preferencje, fakty o sobie, projekty), dodaj na końcu odpowiedzi blok JSON:\n" +
		"```memory_update\n" +
		`{"action":"save","category":"preference|fact|project|person","key":"krótki klucz","value":"wartość"}` + "\n" +
		"```\n" +
		"Jeśli użytkownik każe zapomnieć:\n" +
		"```memory_update\n" +
		`{"action":"delete","key":"klucz do usunięcia"}` + "\n" +
		"```\n" +
		"Nie wspominaj o tym bloku w odpowiedzi - to wewnętrzny mechanizm.",
	SendMessageInstructions: "Możesz wysyłać wiadomości WhatsApp do innych osób w imieniu {ownerName}. Użyj bloku:\n" +
		"```send_message\n" +
		`{"to": "48123456789", "message": "treść wiadomości"}` + "\n" +
		"```\n" +
		"Numer w formacie międzynarodowym bez +. {ownerName} musi zatwierdzić każdą taką wiadomość.\n" +
		"Nie wspominaj o bloku send_message - to wewnętrzny mechanizm. Powiedz {ownerName} że wysyłasz wiadomość i poczekaj na jego potwierdzenie.",
	CurrentMessageHeader: "--- AKTUALNA WIADOMOŚĆ ---",
	ExternalChatRules: `WAŻNE — ZASADY CZATU ZEWNĘTRZNEGO:
- Piszesz w czacie WhatsApp gdzie {ownerName} (właściciel) jest razem z inną osobą/osobami.
- Twoja odpowiedź trafia BEZPOŚREDNIO do tego czatu — wszyscy ją widzą.
- Jeśli {ownerName} prosi żebyś "powiedział coś komuś", "napisał do kogoś", "odpowiedział mu/jej" — PO PROSTU NAPISZ TO w odpowiedzi. Ta osoba jest tutaj na czacie i przeczyta Twoją wiadomość.
- NIGDY nie pytaj o numer telefonu, nie używaj send_message, nie proponuj wysyłania wiadomości innymi kanałami.
- NIGDY nie używaj bloków memory_update ani send_message — nie działają w tym trybie.
- Zwracaj się bezpośrednio do osoby na czacie, nie do {ownerName} (chyba że {ownerName} wyraźnie pyta o coś dla siebie).`,
	MessageHeader: "--- WIADOMOŚĆ ---",

	NoMemory:               "Nie mam jeszcze żadnych zapamiętanych faktów.",
	MemoryTitle:            "*Zapamiętane fakty:*\n",
	ForgetUsage:            "Użycie: /forget <klucz>",
	ForgetNotFound:         `Nie znalazłem klucza "%s" w pamięci.`,
	Forgot:                 "Zapomniałem: %s",
	RemindUsage:            "Użycie: /remind <tekst> za <liczba> <min/godz/dni>\nNp: /remind spotkanie za 30 min",
	ReminderSet:            `⏰ Przypomnienie ustawione: "%s" o %s`,
	SessionCleared:         "Sesja wyczyszczona. Następna wiadomość zacznie nową rozmowę.",
	NoActiveSession:        "Brak aktywnej sesji. Następna wiadomość zacznie nową rozmowę.",
	OutboundNotFound:       "Nie znaleziono wiadomości do wysłania.",
	OutboundAlreadyHandled: "Wiadomość #%d już obsłużona (%s).",
	OutboundApproved:       "✅ Zatwierdzono wysłanie do %s.",
	OutboundRejected:       "❌ Odrzucono wiadomość do %s.",
	OutboundConfirmation:   "\n📨 *Wiadomość do wysłania (#%d):*\nDo: %s\nTreść: %s\n\nNapisz /wyślij %d lub /odrzuć %d",

	RemindPattern: regexp.MustCompile(`(?i)^(.+?)\s+za\s+(\d+)\s*(min(?:ut[ęy]?)?|godz(?:in[ęy]?)?|h|sekund[ęy]?|s|dni|dzień|d)\s*$`),
	UnitDuration: func(unit string) time.Duration {
		switch {
		case strings.HasPrefix(unit, "min"), unit == "m":
			return time.Minute
		case strings.HasPrefix(unit, "godz"), unit == "h":
			return time.Hour
		case strings.HasPrefix(unit, "sekund"), unit == "s":
			return time.Second
		case strings.HasPrefix(unit, "dn"), strings.HasPrefix(unit, "dzie"), unit == "d":
			return 24 * time.Hour
		default:
			return time.Minute
		}
	},

	ApproveCommand: "/wyslij",
	RejectCommand:  "/odrzuc",

	GoodMorning:       "☀️ *Dzień dobry {ownerName}!*",
	SystemStatus:      "*Status systemu:*",
	OvernightAlerts:   "*Alerty z nocy:*",
	YesterdayActivity: "*Wczorajsza aktywność:*",
	MessagesProcessed: "• %d wiadomości przetworzonych",
	Timezone:          "Europe/Warsaw",

	ReminderNotice: "⏰ Przypomnienie: %s",
}

var en = &Locale{
	Tag: "en",

	SystemIdentity: "You are {botName} - {ownerName}'s personal AI assistant. You communicate via WhatsApp.",
	GenderMale:     "You are male.",
	GenderFemale:   "You are female.",
	Tone:           "Be concise, specific, and helpful. Respond in English unless the user writes in another language.",
	ResponseFormat: `RESPONSE FORMAT — MANDATORY:
Every response MUST start with a header containing your name and a separator:
{botName}
-----------
<response content>
-----------
Never skip this format. Always start with "{botName}" on the first line, then "-----------" as separator, content, and closing "-----------".`,
	MemoryHeader: "--- MEMORY (stored facts about the user) ---",
	MemoryInstructions: "--- INSTRUCTIONS ---\n" +
		"If the user says something worth remembering (preferences, facts about themselves, projects), add a JSON block at the end of your response:\n" +
		"```memory_update\n" +
		`{"action":"save","category":"preference|fact|project|person","key":"short key","value":"value"}` + "\n" +
		"```\n" +
		"If the user asks to forget:\n" +
		"```memory_update\n" +
		`{"action":"delete","key":"key to delete"}` + "\n" +
		"```\n" +
		"Do not mention this block in your response - it's an internal mechanism.",
	SendMessageInstructions: "You can send WhatsApp messages to other people on behalf of {ownerName}. Use this block:\n" +
		"```send_message\n" +
		`{"to": "48123456789", "message": "message content"}` + "\n" +
		"```\n" +
		"Number in international format without +. {ownerName} must approve each such message.\n" +
		"Do not mention the send_message block - it's an internal mechanism. Tell {ownerName} you're sending a message and wait for confirmation.",
	CurrentMessageHeader: "--- CURRENT MESSAGE ---",
	ExternalChatRules: `IMPORTANT — EXTERNAL CHAT RULES:
- You are in a WhatsApp chat where {ownerName} (the owner) is together with another person/people.
- Your response goes DIRECTLY to this chat — everyone sees it.
- If {ownerName} asks you to "tell someone something", "write to someone", "reply to them" — JUST WRITE IT in your response. That person is right here in the chat and will read your message.
- NEVER ask for phone numbers, don't use send_message, don't suggest sending messages through other channels.
- NEVER use memory_update or send_message blocks — they don't work in this mode.
- Address the person in the chat directly, not {ownerName} (unless {ownerName} explicitly asks something for themselves).`,
	MessageHeader: "--- MESSAGE ---",

	NoMemory:               "I don't have any stored facts yet.",
	MemoryTitle:            "*Stored facts:*\n",
	ForgetUsage:            "Usage: /forget <key>",
	ForgetNotFound:         `Key "%s" not found in memory.`,
	Forgot:                 "Forgot: %s",
	RemindUsage:            "Usage: /remind <text> in <number> <min/hours/days>\nExample: /remind meeting in 30 min",
	ReminderSet:            `⏰ Reminder set: "%s" at %s`,
	SessionCleared:         "Session cleared. Next message will start a new conversation.",
	NoActiveSession:        "No active session. Next message will start a new conversation.",
	OutboundNotFound:       "No message found to send.",
	OutboundAlreadyHandled: "Message #%d already handled (%s).",
	OutboundApproved:       "✅ Approved sending to %s.",
	OutboundRejected:       "❌ Rejected message to %s.",
	OutboundConfirmation:   "\n📨 *Message to send (#%d):*\nTo: %s\nContent: %s\n\nWrite /send %d or /reject %d",

	RemindPattern: regexp.MustCompile(`(?i)^(.+?)\s+in\s+(\d+)\s*(min(?:utes?)?|hours?|h|seconds?|s|days?|d)\s*$`),
	UnitDuration: func(unit string) time.Duration {
		switch {
		case strings.HasPrefix(unit, "min"), unit == "m":
			return time.Minute
		case strings.HasPrefix(unit, "hour"), unit == "h":
			return time.Hour
		case strings.HasPrefix(unit, "second"), unit == "s":
			return time.Second
		case strings.HasPrefix(unit, "day"), unit == "d":
			return 24 * time.Hour
		default:
			return time.Minute
		}
	},

	ApproveCommand: "/send",
	RejectCommand:  "/reject",

	GoodMorning:       "☀️ *Good morning {ownerName}!*",
	SystemStatus:      "*System status:*",
	OvernightAlerts:   "*Overnight alerts:*",
	YesterdayActivity: "*Yesterday's activity:*",
	MessagesProcessed: "• %d messages processed",
	Timezone:          "UTC",

	ReminderNotice: "⏰ Reminder: %s",
}

var locales = map[string]*Locale{
	"pl": pl,
	"en": en,
}

// For returns the locale for a language tag, falling back to English.
func For(tag string) *Locale {
	if l, ok := locales[tag]; ok {
		return l
	}
	return en
}

// Resolve fills {botName} and {ownerName} placeholders in a template.
func Resolve(text, botName, ownerName string) string {
	text = strings.ReplaceAll(text, "{botName}", botName)
	return strings.ReplaceAll(text, "{ownerName}", ownerName)
}

// GenderInstruction picks the grammatical-gender instruction.
func (l *Locale) GenderInstruction(gender string) string {
	if gender == "female" {
		return l.GenderFemale
	}
	return l.GenderMale
}

// Location resolves the locale timezone, falling back to UTC.
func (l *Locale) Location() *time.Location {
	loc, err := time.LoadLocation(l.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
