package model

// Declaration is a client's entry in the provisioning variables file.
type Declaration struct {
	ServerType string   `json:"server_type" validate:"required"`
	Location   string   `json:"location" validate:"required,oneof=fsn1 nbg1 hel1 ash hil sin"`
	Subdomain  string   `json:"subdomain" validate:"required,hostname_rfc1123"`
	Apps       []string `json:"apps" validate:"required,min=1,dive,oneof=authentik zitadel nextcloud collabora"`
	VolumeSize int      `json:"nextcloud_volume_size" validate:"gte=10,lte=10000"`
}

// SuggestDeclaration returns the default declaration offered to the
// operator when a client has none.
func SuggestDeclaration(name string) Declaration {
	return Declaration{
		ServerType: "cx22",
		Location:   "fsn1",
		Subdomain:  name,
		Apps:       append([]string(nil), DefaultApps...),
		VolumeSize: 100,
	}
}

// IdentityProvider returns the identity provider among apps, or fallback
// when the declaration names none.
func IdentityProvider(apps []string, fallback string) string {
	for _, app := range apps {
		if app == "authentik" || app == "zitadel" {
			return app
		}
	}
	return fallback
}
