package wizard

var (
	passwordFields = []Field{
		{Name: "password", Label: "Mot de passe", Type: "password", Required: true, Secret: true},
		{Name: "password_confirm", Label: "Confirmer le mot de passe", Type: "password", Required: true, Secret: true},
	}

	identityFields = []Field{
		{Name: "email", Label: "Email", Type: "email", ReadOnly: true},
		{Name: "first_name", Label: "Prénom", Type: "text", ReadOnly: true},
		{Name: "last_name", Label: "Nom", Type: "text", ReadOnly: true},
	}
)

// MerchantRegistration collects a registration request. The password is
// chosen later, when the approved request is activated.
var MerchantRegistration = Definition{
	Kind:  KindMerchantRegistration,
	Title: "Inscription commerçant",
	Steps: []Step{
		{Title: "Représentant", Fields: []Field{
			{Name: "first_name", Label: "Prénom", Type: "text", Required: true},
			{Name: "last_name", Label: "Nom", Type: "text", Required: true},
			{Name: "email", Label: "Email", Type: "email", Required: true},
			{Name: "phone", Label: "Téléphone", Type: "tel", Required: true},
		}},
		{Title: "Entreprise", Fields: []Field{
			{Name: "company_name", Label: "Raison sociale", Type: "text", Required: true},
			{Name: "trade_name", Label: "Nom commercial", Type: "text"},
			{Name: "registration_number", Label: "RCCM", Type: "text", Required: true},
			{Name: "tax_id", Label: "NIF", Type: "text", Required: true},
			{Name: "national_id", Label: "Id. Nat.", Type: "text"},
			{Name: "business_sector", Label: "Secteur d'activité", Type: "text", Required: true},
			{Name: "business_description", Label: "Description", Type: "textarea"},
		}},
		{Title: "Adresse et contact", Fields: []Field{
			{Name: "address", Label: "Adresse", Type: "text", Required: true},
			{Name: "city", Label: "Ville", Type: "text", Required: true},
			{Name: "province", Label: "Province", Type: "text", Required: true},
			{Name: "commune", Label: "Commune", Type: "text"},
			{Name: "company_phone", Label: "Téléphone entreprise", Type: "tel", Required: true},
			{Name: "company_email", Label: "Email entreprise", Type: "email", Required: true},
		}},
		{Title: "Paiement", Fields: []Field{
			{Name: "bank_name", Label: "Banque", Type: "text"},
			{Name: "bank_account_number", Label: "Numéro de compte", Type: "text"},
			{Name: "mobile_money_number", Label: "Numéro Mobile Money", Type: "tel"},
			{Name: "mobile_money_provider", Label: "Opérateur Mobile Money", Type: "text"},
		}},
	},
	SuccessTitle:    "Demande envoyée",
	SuccessMessage:  "Votre demande d'inscription a été envoyée. Vous recevrez un email après validation.",
	SuccessRedirect: "/login",
}

var MerchantActivation = Definition{
	Kind:            KindMerchantActivation,
	Title:           "Activation du compte commerçant",
	Steps:           []Step{{Title: "Identité", Fields: identityFields}, {Title: "Mot de passe", Fields: passwordFields}},
	PasswordField:   "password",
	ConfirmField:    "password_confirm",
	SuccessTitle:    "Compte activé",
	SuccessMessage:  "Votre compte est activé. Redirection vers votre espace...",
	SuccessRedirect: "/admin/dashboard",
}

var AgentActivation = Definition{
	Kind:  KindAgentActivation,
	Title: "Activation du compte agent douanier",
	Steps: []Step{
		{Title: "Identité", Fields: append(append([]Field{}, identityFields...),
			Field{Name: "matricule", Label: "Matricule", Type: "text", ReadOnly: true},
			Field{Name: "point_of_exit_name", Label: "Point de sortie", Type: "text", ReadOnly: true},
		)},
		{Title: "Mot de passe", Fields: passwordFields},
	},
	PasswordField:   "password",
	ConfirmField:    "password_confirm",
	SuccessTitle:    "Compte activé",
	SuccessMessage:  "Votre compte agent est activé. Vous pouvez vous connecter.",
	SuccessRedirect: "/login",
}

var SystemUserActivation = Definition{
	Kind:            KindSystemUserActivation,
	Title:           "Activation du compte administrateur",
	Steps:           []Step{{Title: "Identité", Fields: identityFields}, {Title: "Mot de passe", Fields: passwordFields}},
	PasswordField:   "password",
	ConfirmField:    "password_confirm",
	SuccessTitle:    "Compte activé",
	SuccessMessage:  "Votre compte est activé. Vous pouvez vous connecter.",
	SuccessRedirect: "/login",
}

var InvitationAcceptance = Definition{
	Kind:  KindInvitationAcceptance,
	Title: "Rejoindre l'équipe",
	Steps: []Step{
		{Title: "Identité", Fields: []Field{
			{Name: "email", Label: "Email", Type: "email", ReadOnly: true},
			{Name: "company_name", Label: "Entreprise", Type: "text", ReadOnly: true},
			{Name: "first_name", Label: "Prénom", Type: "text", Required: true},
			{Name: "last_name", Label: "Nom", Type: "text", Required: true},
			{Name: "phone", Label: "Téléphone", Type: "tel"},
		}},
		{Title: "Mot de passe", Fields: passwordFields},
	},
	PasswordField:   "password",
	ConfirmField:    "password_confirm",
	SuccessTitle:    "Invitation acceptée",
	SuccessMessage:  "Votre compte est prêt. Vous pouvez vous connecter.",
	SuccessRedirect: "/login",
}

var PasswordReset = Definition{
	Kind:            KindPasswordReset,
	Title:           "Nouveau mot de passe",
	Steps:           []Step{{Title: "Mot de passe", Fields: passwordFields}},
	PasswordField:   "password",
	ConfirmField:    "password_confirm",
	SuccessTitle:    "Mot de passe modifié",
	SuccessMessage:  "Votre mot de passe a été réinitialisé.",
	SuccessRedirect: "/login",
}

var ForgotPassword = Definition{
	Kind:  KindForgotPassword,
	Title: "Mot de passe oublié",
	Steps: []Step{{Title: "Email", Fields: []Field{
		{Name: "email", Label: "Email", Type: "email", Required: true},
	}}},
	SuccessTitle:    "Email envoyé",
	SuccessMessage:  "Si un compte existe, un lien de réinitialisation vous a été envoyé.",
	SuccessRedirect: "/login",
}

var definitions = map[Kind]Definition{
	KindMerchantRegistration: MerchantRegistration,
	KindMerchantActivation:   MerchantActivation,
	KindAgentActivation:      AgentActivation,
	KindSystemUserActivation: SystemUserActivation,
	KindInvitationAcceptance: InvitationAcceptance,
	KindPasswordReset:        PasswordReset,
	KindForgotPassword:       ForgotPassword,
}

func ForKind(kind Kind) (Definition, bool) {
	d, ok := definitions[kind]
	return d, ok
}
