/*
Copyright 2024 The CASD Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package casengine

import (
	"github.com/cas-project/casd/pkg/entry"
	"github.com/cas-project/casd/pkg/metastore"
)

func metaFilter(before entry.Day) metastore.Filter {
	return metastore.Filter{Before: &before}
}

func namespaceCutoffFilter(ns string, before entry.Day) metastore.Filter {
	return metastore.Filter{Namespace: ns, Before: &before}
}

func ancestorFilter(ns string) metastore.Filter {
	return metastore.Filter{Namespace: ns}
}
