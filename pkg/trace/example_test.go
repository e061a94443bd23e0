package trace_test

import (
	"fmt"

	"github.com/matzehuels/heapview/pkg/trace"
)

func ExampleDecode() {
	tr, err := trace.Decode([]byte(`{
		"frames": [{"name": "Main.main", "locals": [["n", ["LONG", 5]], ["head", ["REFERENCE", 7]]]}],
		"heap": [{"id": 7, "label": "Node", "type": "OBJECT", "fields": [["next", ["NULL"]]]}]
	}`))
	if err != nil {
		fmt.Println(err)
		return
	}

	for _, v := range tr.Frames[0].Locals {
		fmt.Printf("%s = %s\n", v.Name, v.Value)
	}
	e, _ := tr.Entity(7)
	fmt.Println(e.Label, e.Body.Kind())
	// Output:
	// head = *REF*
	// n = 5
	// Node OBJECT
}

func ExampleValue_String() {
	fmt.Println(trace.String("hi"), trace.Char('c'), trace.Double(3), trace.Ref(42))
	// Output: "hi" 'c' 3.0 *REF*
}
