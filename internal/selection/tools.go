package selection

// Tool is a modal tool (the selection tool, a measuring tool...). Clicks only
// select while at least one registered tool is open.
type Tool interface {
	Name() string
	Open() bool
}

type Tools struct {
	tools []Tool
}

func (t *Tools) Register(tool Tool) (cancel func()) {
	t.tools = append(t.tools, tool)
	return func() {
		for i, x := range t.tools {
			if x == tool {
				t.tools = append(t.tools[:i:i], t.tools[i+1:]...)
				return
			}
		}
	}
}

func (t *Tools) AnyOpen() bool {
	for _, x := range t.tools {
		if x.Open() {
			return true
		}
	}
	return false
}

// Toggle is a Tool whose open state is set directly.
type Toggle struct {
	name string
	open bool
}

func NewToggle(name string, open bool) *Toggle { return &Toggle{name: name, open: open} }

func (t *Toggle) Name() string      { return t.name }
func (t *Toggle) Open() bool        { return t.open }
func (t *Toggle) SetOpen(open bool) { t.open = open }
