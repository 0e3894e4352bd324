package types

import (
	"errors"
)

// SymbolKind represents the kind of declaration a symbol was read from
type SymbolKind string

const (
	KindFunction  SymbolKind = "function"
	KindMethod    SymbolKind = "method"
	KindClass     SymbolKind = "class"
	KindStruct    SymbolKind = "struct"
	KindInterface SymbolKind = "interface"
	KindEnum      SymbolKind = "enum"
	KindTrait     SymbolKind = "trait"
	KindType      SymbolKind = "type"
	KindModule    SymbolKind = "module"
)

// SymbolScope represents the visibility scope of a symbol
type SymbolScope string

const (
	ScopeExported   SymbolScope = "exported"
	ScopeUnexported SymbolScope = "unexported"
)

// Position represents a location in source code
type Position struct {
	Line   int
	Column int
}

// Symbol is a declaration extracted from a source file
type Symbol struct {
	Name      string
	Kind      SymbolKind
	Signature string // Declaration line, trimmed
	Scope     SymbolScope
	Receiver  string // For methods: receiver type name

	Start Position
	End   Position
}

// IsType reports whether the symbol declares a type rather than a function
func (s *Symbol) IsType() bool {
	switch s.Kind {
	case KindClass, KindStruct, KindInterface, KindEnum, KindTrait, KindType, KindModule:
		return true
	}
	return false
}

// ValidateKind checks if the symbol kind is valid
func (s *Symbol) ValidateKind() error {
	switch s.Kind {
	case KindFunction, KindMethod, KindClass, KindStruct, KindInterface,
		KindEnum, KindTrait, KindType, KindModule:
		return nil
	default:
		return errors.New("invalid symbol kind")
	}
}

// Validate performs comprehensive validation of the symbol
func (s *Symbol) Validate() error {
	if s.Name == "" {
		return errors.New("symbol name is required")
	}

	if err := s.ValidateKind(); err != nil {
		return err
	}

	switch s.Scope {
	case ScopeExported, ScopeUnexported:
	default:
		return errors.New("invalid symbol scope")
	}

	// Methods must have a receiver
	if s.Kind == KindMethod && s.Receiver == "" {
		return errors.New("methods must have a receiver type")
	}

	if s.Start.Line <= 0 || s.End.Line < s.Start.Line {
		return errors.New("invalid position")
	}

	return nil
}
