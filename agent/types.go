package agent

// Kind names an agent role.
type Kind string

const (
	KindArchitect Kind = "architect"
	KindAssembler Kind = "assembler"
	KindPersona   Kind = "persona"
	KindWriter    Kind = "writer"
)

// Brief is the plan the Architect settles on. It is not modified once a
// pipeline phase consumes it.
type Brief struct {
	Topic            string   `yaml:"topic" json:"topic"`
	Goal             string   `yaml:"goal" json:"goal"`
	Audience         string   `yaml:"audience" json:"audience"`
	Language         string   `yaml:"language" json:"language"`
	AssemblerID      string   `yaml:"assemblerId" json:"assemblerId"`
	PersonaID        string   `yaml:"personaId" json:"personaId"`
	AllowedWriterIDs []string `yaml:"allowedWriterIds" json:"allowedWriterIds"`
}

// Component is one blueprint entry; it maps 1:1 to a content section.
type Component struct {
	ID       string `yaml:"id" json:"id"`
	Header   string `yaml:"header" json:"header"`
	Intent   string `yaml:"intent" json:"intent"`
	WriterID string `yaml:"writerId" json:"writerId"`
	Bridge   string `yaml:"bridge" json:"bridge"`
}

// Blueprint is the ordered section plan produced by an Assembler.
type Blueprint struct {
	Components []Component `yaml:"components" json:"components"`
}

// Profile is the short description of an agent shown to planning agents.
type Profile struct {
	ID          string
	Description string
}

// ArchitectInput is the user-provided baseline plus the pool the Architect
// may choose from.
type ArchitectInput struct {
	Baseline   Brief
	Notes      string
	Assemblers []Profile
	Personas   []Profile
	Writers    []Profile
}

type ArchitectResponse struct {
	Brief     Brief
	Reasoning string
}

type AssemblerInput struct {
	Brief   Brief
	Writers []Profile
}

type AssemblerResponse struct {
	Blueprint Blueprint
}

// WriterInput positions one component inside the hub. IsFirst and IsLast
// select the opening/body/closing instruction.
type WriterInput struct {
	Brief     Brief
	Component Component
	IsFirst   bool
	IsLast    bool
}

type WriterResponse struct {
	Content string
}

// PersonaInput is a neutral text the persona rewrites in its own voice.
type PersonaInput struct {
	Text    string
	Purpose string
	Brief   Brief
}

type PersonaResponse struct {
	Text string
}
