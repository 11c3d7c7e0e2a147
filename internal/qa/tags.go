package qa

// tagGroups is the preset catalogue shown by the editor. Tags are not
// restricted to it.
var tagGroups = [][]string{
	// resume
	{"简历项目经验撰写", "简历技能排版", "简历关键词匹配", "面试简历避坑"},
	// technical questions
	{"算法题解", "编程语法题", "框架使用题", "数据库题目"},
	// daily problems
	{"工具使用技巧", "系统配置踩坑", "效率提升方法", "软件安装教程"},
	// interview
	{"技术面试题", "行为面试题", "薪资谈判技巧", "面试流程攻略"},
	// other
	{"学习规划", "资源推荐", "职场技巧"},
}

// Tags returns the preset tag catalogue in display order
func Tags() []string {
	var out []string
	for _, g := range tagGroups {
		out = append(out, g...)
	}
	return out
}
