package rss

import "fmt"

// UnknownFormatError は文書がフィードとして認識できない場合のエラー。
// XMLとして不正な場合、ルート要素がない場合、形式判定が不明だった場合に返す。
type UnknownFormatError struct {
	Root string // ルート要素名（判明している場合）
	Err  error  // XMLパースエラー（存在する場合）
}

func (e *UnknownFormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unknown feed format: %v", e.Err)
	}
	return fmt.Sprintf("unknown feed format: root element <%s>", e.Root)
}

func (e *UnknownFormatError) Unwrap() error {
	return e.Err
}

// StructuralError は判定された形式が要求する構造を文書が満たさない場合のエラー。
// 例: RSS系の形式でルート直下の最初の要素がchannelでない。
type StructuralError struct {
	Version  Version
	Expected string
	Found    string
}

func (e *StructuralError) Error() string {
	if e.Found == "" {
		return fmt.Sprintf("bad %s document: <%s> missing, root has no children", e.Version, e.Expected)
	}
	return fmt.Sprintf("bad %s document: <%s> missing, found <%s>", e.Version, e.Expected, e.Found)
}
