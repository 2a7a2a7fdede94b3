package orm

import "slices"

// Operation 延迟执行的查询操作，携带自身所需的全部状态
type Operation interface {
	Apply(qc *QueryContext)
}

// OperationFunc 函数形式的 Operation，用于调用方自定义的一次性操作
type OperationFunc func(qc *QueryContext)

func (f OperationFunc) Apply(qc *QueryContext) {
	f(qc)
}

// Scope 带标签的操作，Joint 为 true 表示结构性的连接
type Scope struct {
	Name  string
	Joint bool
	Op    Operation
}

// ScopeTrack 记录一条查询链上的全部作用域，按加入顺序回放
// 同一个 ScopeTrack 不可并发修改，复用前先 Fork
type ScopeTrack struct {
	scopes []Scope
}

func NewScopeTrack() *ScopeTrack {
	return &ScopeTrack{}
}

func (s *ScopeTrack) Push(scope Scope) {
	s.scopes = append(s.scopes, scope)
}

// RelabelLast 修改最后加入的作用域的标签
func (s *ScopeTrack) RelabelLast(name string) {
	if len(s.scopes) == 0 {
		return
	}
	s.scopes[len(s.scopes)-1].Name = name
}

// MakeJointOfLast 把最后加入的作用域标记为连接
func (s *ScopeTrack) MakeJointOfLast() {
	if len(s.scopes) == 0 {
		return
	}
	s.scopes[len(s.scopes)-1].Joint = true
}

func (s *ScopeTrack) HasJoint(name string) bool {
	for _, scope := range s.scopes {
		if scope.Joint && scope.Name == name {
			return true
		}
	}
	return false
}

// Fork 返回独立的副本，之后对任意一方的修改互不影响
func (s *ScopeTrack) Fork() *ScopeTrack {
	return &ScopeTrack{scopes: slices.Clone(s.scopes)}
}

func (s *ScopeTrack) Len() int {
	return len(s.scopes)
}

func (s *ScopeTrack) Scopes() []Scope {
	return slices.Clone(s.scopes)
}

// Apply 按加入顺序把每个作用域回放到 qc 上
func (s *ScopeTrack) Apply(qc *QueryContext) {
	for _, scope := range s.scopes {
		if scope.Op != nil {
			scope.Op.Apply(qc)
		}
	}
}
