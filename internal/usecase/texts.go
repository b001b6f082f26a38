package usecase

// texts are the user-facing strings the controller produces itself.
type texts struct {
	codeSent            string
	invalidCode         string
	genericError        string
	noDocuments         string
	sessionExpired      string
	approvalBlocked     string
	approved            string
	completed           string
	impersonationFailed string
	aiFailed            string
	escalated           string
}

var textsByLang = map[string]texts{
	"da": {
		codeSent:            "Vi har sendt en kode til dig.",
		invalidCode:         "Koden er forkert eller udløbet.",
		genericError:        "Der opstod en fejl. Prøv igen.",
		noDocuments:         "Ingen dokumenter fundet.",
		sessionExpired:      "Din session er udløbet. Log ind igen.",
		approvalBlocked:     "Et eller flere dokumenter kan ikke godkendes her. Kontakt os, så hjælper vi.",
		approved:            "Tak for din godkendelse.",
		completed:           "Alle dokumenter er godkendt. Tak!",
		impersonationFailed: "Linket er ugyldigt eller allerede brugt.",
		aiFailed:            "Vi kunne ikke hente et svar lige nu. Prøv igen, eller skriv til os.",
		escalated:           "Dit spørgsmål er sendt videre til en medarbejder.",
	},
	"sv": {
		codeSent:            "Vi har skickat en kod till dig.",
		invalidCode:         "Koden är felaktig eller har gått ut.",
		genericError:        "Ett fel uppstod. Försök igen.",
		noDocuments:         "Inga dokument hittades.",
		sessionExpired:      "Din session har gått ut. Logga in igen.",
		approvalBlocked:     "Ett eller flera dokument kan inte godkännas här. Kontakta oss så hjälper vi dig.",
		approved:            "Tack för ditt godkännande.",
		completed:           "Alla dokument är godkända. Tack!",
		impersonationFailed: "Länken är ogiltig eller redan använd.",
		aiFailed:            "Vi kunde inte hämta ett svar just nu. Försök igen eller skriv till oss.",
		escalated:           "Din fråga har skickats vidare till en medarbetare.",
	},
	"en": {
		codeSent:            "We have sent you a code.",
		invalidCode:         "The code is incorrect or has expired.",
		genericError:        "Something went wrong. Please try again.",
		noDocuments:         "No documents found.",
		sessionExpired:      "Your session has expired. Please sign in again.",
		approvalBlocked:     "One or more documents cannot be approved here. Please contact us and we will help.",
		approved:            "Thank you for your approval.",
		completed:           "All documents are approved. Thank you!",
		impersonationFailed: "This link is invalid or has already been used.",
		aiFailed:            "We could not get an answer right now. Please try again or write to us.",
		escalated:           "Your question has been passed on to a member of staff.",
	},
}

func textsFor(lang string) texts {
	if t, ok := textsByLang[lang]; ok {
		return t
	}
	return textsByLang["en"]
}
