package commands

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"jellybot/model"
)

// ArgType 指令参数类型
type ArgType int

const (
	ArgString ArgType = iota
	ArgInt
	ArgFloat
	ArgBool
)

func (t ArgType) String() string {
	switch t {
	case ArgInt:
		return "整数"
	case ArgFloat:
		return "数字"
	case ArgBool:
		return "布尔值"
	default:
		return "文字"
	}
}

// Arg 参数说明
type Arg struct {
	Name        string
	Type        ArgType
	Description string
}

// Callable 指令实现。args 已按 Function.Args 转换为 string/int/float64/bool。
type Callable func(ctx context.Context, e *model.MessageEvent, args []any) ([]model.HandledMessage, error)

// Function 注册在节点上的一个指令函数，以参数数量区分
type Function struct {
	Callable    Callable
	Args        []Arg
	Feature     model.BotFeature
	Description string
	// Scope 允许的频道类型，空表示不限
	Scope    []model.ChannelType
	Cooldown time.Duration

	node *Node
}

// InScope 频道类型是否允许
func (f *Function) InScope(t model.ChannelType) bool {
	if len(f.Scope) == 0 {
		return true
	}
	for _, s := range f.Scope {
		if s == t {
			return true
		}
	}
	return false
}

// Usage 指令用法，例如 "JC AR ADD <keyword> <response>"
func (f *Function) Usage() string {
	parts := f.node.path()
	for _, a := range f.Args {
		parts = append(parts, "<"+a.Name+">")
	}
	root := f.node.root()
	sep := root.splitters[len(root.splitters)-1]
	return root.prefix + sep + strings.Join(parts, sep)
}

// Node 指令节点。根节点带前缀和分隔符，子节点继承根节点的设置。
type Node struct {
	codes           []string
	caseInsensitive bool
	Description     string

	prefix    string
	splitters []string

	parent   *Node
	children []*Node
	funcs    map[int]*Function
}

// NewRoot 建立根节点，splitters 按顺序匹配，第一个符合的生效
func NewRoot(prefix string, splitters ...string) *Node {
	if len(splitters) == 0 {
		splitters = []string{" "}
	}
	return &Node{prefix: prefix, splitters: splitters, funcs: make(map[int]*Function)}
}

// Child 新增子节点，codes 为指令代码与别名
func (n *Node) Child(description string, caseInsensitive bool, codes ...string) *Node {
	c := &Node{
		codes:           codes,
		caseInsensitive: caseInsensitive,
		Description:     description,
		parent:          n,
		funcs:           make(map[int]*Function),
	}
	n.children = append(n.children, c)
	return c
}

// Register 注册函数，同一参数数量只能有一个，后注册的会覆盖
func (n *Node) Register(fn *Function) *Node {
	fn.node = n
	n.funcs[len(fn.Args)] = fn
	return n
}

func (n *Node) root() *Node {
	for n.parent != nil {
		n = n.parent
	}
	return n
}

func (n *Node) path() []string {
	var parts []string
	for c := n; c.parent != nil; c = c.parent {
		parts = append([]string{c.codes[0]}, parts...)
	}
	return parts
}

func (n *Node) matches(token string) bool {
	for _, code := range n.codes {
		if code == token || (n.caseInsensitive && strings.EqualFold(code, token)) {
			return true
		}
	}
	return false
}

// Functions 节点与所有子节点的函数，按用法排序
func (n *Node) Functions() []*Function {
	var out []*Function
	var walk func(*Node)
	walk = func(c *Node) {
		for _, fn := range c.funcs {
			out = append(out, fn)
		}
		for _, child := range c.children {
			walk(child)
		}
	}
	walk(n)
	sort.Slice(out, func(i, j int) bool { return out[i].Usage() < out[j].Usage() })
	return out
}

// Match 解析结果
type Match struct {
	Function *Function
	Args     []string
}

// Parse 解析指令文字，不是指令时返回 nil
func (n *Node) Parse(text string) *Match {
	root := n.root()
	if !strings.HasPrefix(text, root.prefix) {
		return nil
	}
	rest := text[len(root.prefix):]
	splitter := ""
	for _, s := range root.splitters {
		if strings.HasPrefix(rest, s) {
			splitter = s
			break
		}
	}
	if splitter == "" {
		return nil
	}
	body := rest[len(splitter):]
	return root.resolve(body, scan(body, splitter), splitter)
}

func (n *Node) resolve(src string, tokens []token, splitter string) *Match {
	if len(tokens) > 0 {
		for _, child := range n.children {
			if child.matches(tokens[0].text) {
				if m := child.resolve(src, tokens[1:], splitter); m != nil {
					return m
				}
			}
		}
	}
	if fn, ok := n.funcs[len(tokens)]; ok {
		return &Match{Function: fn, Args: texts(tokens)}
	}
	// 多余的参数并入最后一个参数，直接取原文，保留其中的分隔符
	for count := len(tokens) - 1; count > 0; count-- {
		if fn, ok := n.funcs[count]; ok {
			last := src[tokens[count-1].start:]
			for strings.HasSuffix(last, splitter) {
				last = strings.TrimSuffix(last, splitter)
			}
			return &Match{Function: fn, Args: append(texts(tokens[:count-1]), last)}
		}
	}
	return nil
}

// token 切分出的参数，start 为它在原文中的起始位置（含开头的引号）
type token struct {
	text  string
	start int
}

func texts(tokens []token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.text
	}
	return out
}

var quotePairs = map[rune]rune{
	'\'': '\'',
	'"':  '"',
	'“':  '”',
}

// tokenize 以 splitter 切分，引号内的分隔符不生效，引号本身会被去掉。
// 连续分隔符产生的空参数会被忽略，引号包住的空字符串保留。
func tokenize(s, splitter string) []string {
	return texts(scan(s, splitter))
}

func scan(s, splitter string) []token {
	var (
		tokens  []token
		cur     strings.Builder
		closing rune
		quoted  bool
		start   = -1
	)
	flush := func() {
		if cur.Len() > 0 || quoted {
			tokens = append(tokens, token{text: cur.String(), start: start})
		}
		cur.Reset()
		quoted = false
		start = -1
	}
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case closing != 0:
			if r == closing {
				closing = 0
			} else {
				cur.WriteRune(r)
			}
			i += size
		case cur.Len() == 0 && !quoted && quotePairs[r] != 0:
			closing = quotePairs[r]
			quoted = true
			start = i
			i += size
		case strings.HasPrefix(s[i:], splitter):
			flush()
			i += len(splitter)
		default:
			if start < 0 {
				start = i
			}
			cur.WriteRune(r)
			i += size
		}
	}
	flush()
	return tokens
}
