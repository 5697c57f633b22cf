package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/shpitdev/crime-category-etl/pkg/pipeline/schema"
	"github.com/shpitdev/crime-category-etl/test/template/processor"
)

func main() {
	in := strings.Join(schema.CrimeRecords.Columns(), ",") + "\n" +
		"1,HX1,2015-09-05 13:30:00 UTC,BLK,THEFT,D,L,true,,\n"
	counts, err := processor.CountByColumn(context.Background(), strings.NewReader(in), schema.CrimeRecords, "primary_type", 1)
	if err != nil {
		panic(err)
	}
	fmt.Println(counts["THEFT"])
}
