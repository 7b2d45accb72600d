package operator

// Compile-time assertions that every variant satisfies Operator.
var (
	_ Operator = (*Load)(nil)
	_ Operator = (*Filter)(nil)
	_ Operator = (*Foreach)(nil)
	_ Operator = (*Generate)(nil)
	_ Operator = (*ConstructBag)(nil)
	_ Operator = (*Grouping)(nil)
	_ Operator = (*Join)(nil)
	_ Operator = (*Distinct)(nil)
	_ Operator = (*Limit)(nil)
	_ Operator = (*Union)(nil)
	_ Operator = (*OrderBy)(nil)
	_ Operator = (*Split)(nil)
	_ Operator = (*Store)(nil)
	_ Operator = (*Dump)(nil)
	_ Operator = (*Materialize)(nil)
	_ Operator = (*Cache)(nil)
	_ Operator = (*TimingOp)(nil)
	_ Operator = (*Register)(nil)
	_ Operator = (*Window)(nil)
	_ Operator = (*Matcher)(nil)
)
