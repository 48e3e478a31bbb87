package office

type Office struct {
	Name     string `yaml:"name"`
	SlotsURL string `yaml:"slots_url"`
	Enabled  *bool  `yaml:"enabled"`
}

func (o Office) IsEnabled() bool {
	return o.Enabled == nil || *o.Enabled
}

type catalogFile struct {
	Offices []Office `yaml:"offices"`
}
